package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hikaru/kioku/internal/observability"
	"github.com/hikaru/kioku/pkg/oracle"
	"github.com/rs/zerolog"
)

const structurizePrompt = `Convert the user's statement into objective facts written from a third-person perspective.

Example input: "I am an IT engineer living in Tokyo"
Example output:
["The user lives in Tokyo", "The user is an IT engineer"]

Example input: "I recently became a project manager"
Example output:
["The user recently became a project manager"]

Rules:
1. Split the statement into independent facts, one per sentence
2. Rewrite "I" as "The user"
3. Preserve tense
4. Record emotions and opinions as facts too
5. Respond with a JSON array and nothing else

Input: %s`

// Structurizer turns one raw utterance into zero or more independent
// third-person factual statements via the oracle.
type Structurizer struct {
	oracle oracle.Oracle
	logger zerolog.Logger
}

// NewStructurizer creates a new Structurizer.
func NewStructurizer(o oracle.Oracle, logger zerolog.Logger) *Structurizer {
	return &Structurizer{oracle: o, logger: logger}
}

// Structurize extracts factual statements from an utterance. Extraction is
// best effort: an oracle failure, a response with no JSON array, a parse
// failure, or an empty array all yield an empty slice, never an error.
func (s *Structurizer) Structurize(ctx context.Context, utterance string) []string {
	response, err := s.oracle.Complete(ctx, []oracle.Message{
		{Role: oracle.RoleUser, Content: fmt.Sprintf(structurizePrompt, utterance)},
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Structurization oracle call failed")
		observability.RecordOracleFallback("structurize")
		return nil
	}

	fragment, ok := extractJSONArray(response)
	if !ok {
		s.logger.Debug().Msg("No JSON array in structurization response")
		observability.RecordOracleFallback("structurize")
		return nil
	}

	var parsed []any
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to parse structurization response")
		observability.RecordOracleFallback("structurize")
		return nil
	}

	statements := make([]string, 0, len(parsed))
	for _, item := range parsed {
		text, ok := item.(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}

	return statements
}

// extractJSONArray returns the first array-shaped substring of s. Oracle
// responses may wrap the array in prose or code-fence markers, so the scan
// spans from the first '[' to the last ']'.
func extractJSONArray(s string) (string, bool) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// extractJSONObject returns the first object-shaped substring of s.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}
