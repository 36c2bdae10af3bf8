package auth

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var ghosts = []string{"specter", "wraith", "phantom", "shade", "polter", "spirit"}

const maxHandleBase = 10

// GhostHandle generates a public pseudonym such as "@wraith_alice_417".
func GhostHandle(nameOrEmail string) string {
	base := alnum(strings.ToLower(nameOrEmail))
	if len(base) > maxHandleBase {
		base = base[:maxHandleBase]
	}
	if base == "" {
		base = "ghost"
	}
	g := ghosts[rand.IntN(len(ghosts))]
	return fmt.Sprintf("@%s_%s_%d", g, base, handleNumber())
}

// MigrationHandle derives the handle given to projects listed before
// handles existed: "@ghost_<local part>_<nnn>".
func MigrationHandle(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return fmt.Sprintf("@ghost_%s_%d", alnum(strings.ToLower(local)), handleNumber())
}

// handleNumber returns a three digit number.
func handleNumber() int {
	return 100 + rand.IntN(900)
}

func alnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
