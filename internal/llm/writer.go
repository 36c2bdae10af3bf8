package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joescharf/ghostvault/internal/metrics"
)

const (
	maxThumbnailPromptLen = 250

	defaultFocus = "building a useful software tool"

	// FallbackThumbnailPrompt is used when no image prompt can be generated.
	FallbackThumbnailPrompt = "cinematic cyberpunk ghost-themed software project thumbnail, neon glow, code fragments, haunted digital aura, minimal clean illustration, dark background, high detail, no text"
)

// RepoFacts are the repository numbers quoted in the Ghost Log prompt.
type RepoFacts struct {
	Stars       int
	Forks       int
	LastUpdated time.Time
}

// Writer produces Ghost Logs and thumbnail prompts. It never fails:
// generation errors degrade to deterministic fallback text.
type Writer struct {
	gen    Generator
	logger *zap.Logger
}

// NewWriter returns a Writer. gen may be nil, in which case every call
// returns the fallback text.
func NewWriter(gen Generator, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{gen: gen, logger: logger}
}

// buildGhostLogPrompt constructs the prompt for the 3-sentence summary.
func buildGhostLogPrompt(name, description string, facts RepoFacts) string {
	if strings.TrimSpace(description) == "" {
		description = "No description provided"
	}
	updated := "unknown"
	if !facts.LastUpdated.IsZero() {
		updated = facts.LastUpdated.UTC().Format(time.RFC3339)
	}

	var sb strings.Builder
	sb.WriteString("Analyze this GitHub project and return a unique, creative, technical summary in exactly 3 sentences.\n")
	sb.WriteString("Rules:\n")
	sb.WriteString("- Do NOT use generic ghost metaphors.\n")
	sb.WriteString("- Keep it technical and hackathon-friendly.\n")
	sb.WriteString("- Mention what it does + what problem it solves + current state.\n\n")
	fmt.Fprintf(&sb, "Project Title: %s\n", name)
	fmt.Fprintf(&sb, "Description: %s\n", description)
	fmt.Fprintf(&sb, "Stars: %d\n", facts.Stars)
	fmt.Fprintf(&sb, "Forks: %d\n", facts.Forks)
	fmt.Fprintf(&sb, "Last Updated: %s\n\n", updated)
	sb.WriteString("Return only the 3-sentence summary text.")
	return sb.String()
}

// FallbackGhostLog is the deterministic summary used when generation fails.
func FallbackGhostLog(name, description string) string {
	focus := strings.TrimSpace(description)
	if focus == "" {
		focus = defaultFocus
	}
	return fmt.Sprintf("This project (%s) focuses on %s with a modular architecture. "+
		"It currently shows early traction and can be extended with new features and improved scalability. "+
		"With further development, it can become a production-ready solution with better reliability and documentation.",
		name, focus)
}

// GhostLog returns a technical 3-sentence summary of the project.
func (w *Writer) GhostLog(ctx context.Context, name, description string, facts RepoFacts) string {
	if w.gen == nil {
		metrics.Get().AIGenerations.WithLabelValues("ghost_log", "fallback").Inc()
		return FallbackGhostLog(name, description)
	}

	text, err := w.gen.Generate(ctx, buildGhostLogPrompt(name, description, facts), Options{
		Temperature:     0.8,
		MaxOutputTokens: 220,
	})
	if err != nil {
		w.logger.Warn("ghost log generation failed, using fallback", zap.String("project", name), zap.Error(err))
		metrics.Get().AIGenerations.WithLabelValues("ghost_log", "fallback").Inc()
		return FallbackGhostLog(name, description)
	}
	metrics.Get().AIGenerations.WithLabelValues("ghost_log", "ok").Inc()
	return text
}

// buildThumbnailPrompt constructs the prompt asking for an image prompt.
func buildThumbnailPrompt(title, ghostLog string) string {
	var sb strings.Builder
	sb.WriteString("You are an expert prompt engineer for AI thumbnail generation.\n\n")
	sb.WriteString("Create ONE single-line prompt to generate a cinematic thumbnail image for a software project.\n")
	sb.WriteString("Constraints:\n")
	sb.WriteString("- NO text, NO letters, NO watermark\n")
	sb.WriteString("- Style: cyberpunk neon + spooky ghost aesthetic + clean minimal UI look\n")
	sb.WriteString("- Include: code fragments, terminal glow, haunted digital aura\n")
	sb.WriteString("- Make it professional, startup-like, NOT childish\n")
	sb.WriteString("- Keep prompt under 35 words\n\n")
	fmt.Fprintf(&sb, "Project title: %s\n", title)
	fmt.Fprintf(&sb, "Ghost log: %s\n\n", ghostLog)
	sb.WriteString("Return ONLY the prompt line.")
	return sb.String()
}

// sanitizePrompt flattens a model answer into a single unquoted line.
func sanitizePrompt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.NewReplacer(`"`, "", "'", "").Replace(s)
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxThumbnailPromptLen {
		s = string(r[:maxThumbnailPromptLen])
	}
	return s
}

// ThumbnailPrompt returns a single-line image prompt for the project.
func (w *Writer) ThumbnailPrompt(ctx context.Context, title, ghostLog string) string {
	if w.gen == nil {
		metrics.Get().AIGenerations.WithLabelValues("thumbnail_prompt", "fallback").Inc()
		return FallbackThumbnailPrompt
	}

	text, err := w.gen.Generate(ctx, buildThumbnailPrompt(title, ghostLog), Options{
		Temperature:     0.4,
		MaxOutputTokens: 120,
	})
	if err == nil {
		if text = sanitizePrompt(text); text == "" {
			err = ErrEmptyResponse
		}
	}
	if err != nil {
		w.logger.Warn("thumbnail prompt generation failed, using fallback", zap.String("project", title), zap.Error(err))
		metrics.Get().AIGenerations.WithLabelValues("thumbnail_prompt", "fallback").Inc()
		return FallbackThumbnailPrompt
	}
	metrics.Get().AIGenerations.WithLabelValues("thumbnail_prompt", "ok").Inc()
	return text
}
