package ai

import (
	"fmt"
	"strings"

	"github.com/oakdemir/pharmachat/internal/model/profile"
)

const baseInstructions = `Sen bir ilaç bilgi asistanısın. Kullanıcılara ilaçlar, kullanım şekilleri, dozajlar, yan etkiler ve ilaç etkileşimleri hakkında güvenilir ve anlaşılır bilgi verirsin.

Kurallar:
- Tanı koymaz, tedavi önermezsin; yalnızca genel ilaç bilgisi sunarsın.
- Ciddi belirtilerde mutlaka bir hekime veya eczacıya başvurulmasını söylersin.
- Emin olmadığın konularda bunu açıkça belirtirsin.
- Yanıtlarını sade bir Türkçe ile, kısa paragraflar halinde verirsin.`

// profileKeys lists the attributes surfaced to the model, in a stable order.
var profileKeys = []struct {
	key   string
	label string
}{
	{"name", "İsim"},
	{"age", "Yaş"},
	{"weight", "Kilo"},
	{"allergies", "Alerjiler"},
	{"conditions", "Kronik rahatsızlıklar"},
	{"medications", "Kullanılan ilaçlar"},
}

// BuildSystemInstructions composes the system prompt from the user's health
// record. A missing or empty record degrades to the generic instructions,
// never an error.
func BuildSystemInstructions(record profile.Record) string {
	if record.Empty() {
		return baseInstructions
	}

	var builder strings.Builder
	builder.WriteString(baseInstructions)
	builder.WriteString("\n\nKullanıcı sağlık bilgileri:")
	for _, attr := range profileKeys {
		if value := record.Get(attr.key); value != "" {
			builder.WriteString(fmt.Sprintf("\n- %s: %s", attr.label, value))
		}
	}
	builder.WriteString("\n\nYanıtlarında bu bilgileri dikkate al; özellikle alerji ve ilaç etkileşimi uyarılarında.")
	return builder.String()
}
