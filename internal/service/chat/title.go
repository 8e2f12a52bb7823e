package chat

import (
	"fmt"
	"strings"

	"github.com/oakdemir/pharmachat/internal/model/chat"
)

const (
	titleMaxRunes   = 50
	titleCutRunes   = 47
	titleShortRunes = 40
	titleEllipsis   = "..."
	titleSuffix     = " hakkında"
)

// GenerateTitle derives a session title from the first user turn: whitespace
// collapsed, long input cut to 47 runes plus an ellipsis, and short
// unpunctuated fragments rounded off with a neutral suffix so they read as
// phrases.
func GenerateTitle(raw string) (string, error) {
	collapsed := strings.Join(strings.Fields(raw), " ")
	if collapsed == "" {
		return "", fmt.Errorf("%w: empty title", chat.ErrValidation)
	}

	runes := []rune(collapsed)
	if len(runes) > titleMaxRunes {
		return string(runes[:titleCutRunes]) + titleEllipsis, nil
	}
	if len(runes) <= titleShortRunes && !endsWithTerminalPunct(runes) {
		return collapsed + titleSuffix, nil
	}
	return collapsed, nil
}

func endsWithTerminalPunct(runes []rune) bool {
	switch runes[len(runes)-1] {
	case '.', '!', '?', '…':
		return true
	}
	return false
}
