package agent

import "fmt"

// Summary agent defaults.
const (
	DefaultSummaryLanguage = "Traditional Chinese (Taiwan)"
	DefaultSummaryLength   = 1000
)

const summaryInstructions = `You are a summarization assistant.
Summarize the conversation and any documents, pages or search results it contains.
Write the summary in %s, in at most %d characters.
Start with a one-sentence overview, then list the key points as short bullet items.
Keep names, numbers and links exactly as they appear. Do not add facts that are not in the source.`

// SummaryConfig configures the summary agent.
type SummaryConfig struct {
	Model       string
	Temperature float32
	Language    string
	Length      int
}

// NewSummaryAgent returns the agent other agents hand off to for summaries.
func NewSummaryAgent(cfg SummaryConfig) *Agent {
	if cfg.Language == "" {
		cfg.Language = DefaultSummaryLanguage
	}
	if cfg.Length <= 0 {
		cfg.Length = DefaultSummaryLength
	}
	a := New("summary_agent", fmt.Sprintf(summaryInstructions, cfg.Language, cfg.Length))
	a.HandoffDescription = "Use it when the user asks for a summary."
	a.Model = cfg.Model
	a.Temperature = cfg.Temperature
	return a
}
