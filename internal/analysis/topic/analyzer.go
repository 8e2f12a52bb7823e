package topic

import "strings"

// Label is the category tag attached to a session.
type Label string

const (
	General     Label = "general"
	Dosage      Label = "dosage"
	Interaction Label = "interaction"
	SideEffects Label = "side-effects"
	Usage       Label = "usage"
	Pregnancy   Label = "pregnancy"
)

var keywordBuckets = map[Label][]string{
	Dosage: {
		"doz", "dozu", "dozaj", "mg", "miligram", "kaç tane", "kaç kez", "günde kaç",
		"dose", "dosage", "how many", "how much", "overdose", "aşırı doz",
	},
	Interaction: {
		"etkileşim", "birlikte", "beraber", "alkol", "alkolle", "karıştır",
		"interaction", "together", "combine", "mix", "alcohol", "ile beraber",
	},
	SideEffects: {
		"yan etki", "yan etkisi", "yan etkileri", "zarar", "zararlı", "alerji",
		"side effect", "adverse", "reaction", "harmful", "bulantı", "baş ağrısı",
	},
	Usage: {
		"nasıl kullanılır", "ne işe yarar", "niçin", "ne için", "aç karnına", "tok karnına",
		"how to use", "what is it for", "before meal", "after meal", "kullanım",
	},
	Pregnancy: {
		"hamile", "hamilelik", "gebelik", "emzirme", "emziren",
		"pregnant", "pregnancy", "breastfeeding", "nursing",
	},
}

// classifyOrder fixes how score ties resolve; map iteration order must not
// decide the label.
var classifyOrder = []Label{Dosage, Interaction, SideEffects, Usage, Pregnancy}

// Classify assigns a session category from the first user turn. Unrecognized
// input falls back to General.
func Classify(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return General
	}

	best := General
	bestScore := 0
	for _, label := range classifyOrder {
		score := 0
		for _, word := range keywordBuckets[label] {
			if strings.Contains(normalized, word) {
				score += 3
			}
		}
		if score > bestScore {
			bestScore = score
			best = label
		}
	}
	return best
}
