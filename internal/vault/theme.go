package vault

import (
	"strings"
	"unicode/utf8"
)

var themeKeywords = []struct {
	theme    string
	keywords []string
}{
	{"Circuit", []string{"api", "server", "backend"}},
	{"Quantum", []string{"ai", "ml", "neural", "learning"}},
	{"Shield", []string{"security", "crypto", "shield", "guard"}},
	{"Data", []string{"data", "db", "storage", "warehouse"}},
	{"Matrix", []string{"game", "engine", "unity"}},
	{"Digital", []string{"web", "ui", "frontend", "design"}},
	{"Future", []string{"mobile", "ios", "android"}},
	{"Biohazard", []string{"bio", "health", "medical", "dna"}},
	{"Gold", []string{"finance", "bank", "money", "trade"}},
	{"Network", []string{"social", "chat", "messaging", "network"}},
	{"Signal", []string{"iot", "sensor", "device"}},
}

var fallbackThemes = []string{"Nebula", "Cyber", "Ghost", "Fire", "Ice", "Shadow", "Plasma", "Hacker", "Retro"}

// Theme classifies a project title into a visual theme. Keyword groups are
// checked in order; titles matching none are bucketed by first character.
func Theme(title string) string {
	if title == "" {
		return "Default"
	}
	lower := strings.ToLower(title)
	for _, tk := range themeKeywords {
		for _, kw := range tk.keywords {
			if strings.Contains(lower, kw) {
				return tk.theme
			}
		}
	}
	r, _ := utf8.DecodeRuneInString(lower)
	return fallbackThemes[int(r)%len(fallbackThemes)]
}
