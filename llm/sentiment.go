package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const maxHeadlines = 10

// Sentiment is the model's view of a batch of headlines
type Sentiment struct {
	Score   float64 `json:"score"`   // -1 (very negative) .. 1 (very positive)
	Summary string  `json:"summary"` // one short sentence
}

// FormatHeadlinePrompt builds the scoring prompt
func FormatHeadlinePrompt(ticker string, headlines []string) string {
	if len(headlines) > maxHeadlines {
		headlines = headlines[:maxHeadlines]
	}

	var sb strings.Builder
	sb.Grow(256 + len(headlines)*120)
	fmt.Fprintf(&sb, "Ticker: %s\nHeadlines (newest first):\n", ticker)
	for i, h := range headlines {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, strings.TrimSpace(h))
	}
	sb.WriteString("\nReturn {\"score\": <number between -1 and 1>, \"summary\": \"<max 15 words>\"} ")
	sb.WriteString("where score is the expected same-day price impact.")
	return sb.String()
}

// ParseSentiment extracts the JSON object from a model reply.
// Code fences and surrounding prose are tolerated; the score is clamped to [-1, 1].
func ParseSentiment(reply string) (Sentiment, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return Sentiment{}, fmt.Errorf("no JSON object in reply")
	}

	var s Sentiment
	if err := json.Unmarshal([]byte(reply[start:end+1]), &s); err != nil {
		return Sentiment{}, fmt.Errorf("invalid sentiment JSON: %w", err)
	}
	if math.IsNaN(s.Score) {
		return Sentiment{}, fmt.Errorf("sentiment score is NaN")
	}
	s.Score = math.Max(-1, math.Min(1, s.Score))
	s.Summary = strings.TrimSpace(s.Summary)
	return s, nil
}
