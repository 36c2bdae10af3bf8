package thumbnail

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// DefaultBaseURL is the Pollinations image endpoint.
const DefaultBaseURL = "https://image.pollinations.ai"

const (
	maxPromptLen = 250
	width        = 768
	height       = 512
	seedRange    = 100000
)

// Builder formats thumbnail image URLs against a base URL.
type Builder struct {
	BaseURL string
}

// NewBuilder returns a Builder for base, or DefaultBaseURL when empty.
func NewBuilder(base string) *Builder {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Builder{BaseURL: strings.TrimRight(base, "/")}
}

// URL returns the image URL for prompt with the given seed.
func (b *Builder) URL(prompt string, seed int) string {
	cleaned := strings.Join(strings.Fields(prompt), " ")
	if r := []rune(cleaned); len(r) > maxPromptLen {
		cleaned = string(r[:maxPromptLen])
	}
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&seed=%d",
		b.BaseURL, encodeComponent(cleaned), width, height, seed)
}

// componentUnescaper undoes the escapes url.QueryEscape applies that a
// URI component keeps literal.
var componentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// encodeComponent escapes s like JavaScript's encodeURIComponent: only
// letters, digits and -_.!~*'() stay literal.
func encodeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// RandomURL is URL with a fresh random seed.
func (b *Builder) RandomURL(prompt string) string {
	return b.URL(prompt, RandomSeed())
}

// RandomSeed returns a seed in [0, 100000).
func RandomSeed() int {
	return rand.IntN(seedRange)
}
