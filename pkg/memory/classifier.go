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

const classifyPrompt = `Classify the following fact about the user.

core_context (always included in reply context):
- Basic attributes (occupation, place of residence, hobbies)
- Important personal information
- Ongoing situations (current projects, concerns)

archive (recorded for search only):
- One-off events
- Specific past episodes
- Detail only needed when searching

Input: %s

Respond with a JSON object and nothing else:
{
  "type": "core_context",
  "category": "occupation",
  "importance_score": 0.8
}`

// Classifier assigns each statement a retention tier, a category label, and
// an importance score via the oracle.
type Classifier struct {
	oracle oracle.Oracle
	logger zerolog.Logger
}

// NewClassifier creates a new Classifier.
func NewClassifier(o oracle.Oracle, logger zerolog.Logger) *Classifier {
	return &Classifier{oracle: o, logger: logger}
}

// Classify returns the classification for one statement. Any oracle failure
// or malformed response yields the fail-safe default triple rather than an
// error: retaining context is preferred over dropping it.
func (c *Classifier) Classify(ctx context.Context, statement string) Classification {
	response, err := c.oracle.Complete(ctx, []oracle.Message{
		{Role: oracle.RoleUser, Content: fmt.Sprintf(classifyPrompt, statement)},
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Classification oracle call failed")
		observability.RecordOracleFallback("classify")
		return defaultClassification()
	}

	fragment, ok := extractJSONObject(response)
	if !ok {
		c.logger.Debug().Msg("No JSON object in classification response")
		observability.RecordOracleFallback("classify")
		return defaultClassification()
	}

	var parsed struct {
		Type            string `json:"type"`
		Category        any    `json:"category"`
		ImportanceScore any    `json:"importance_score"`
	}
	if err := json.Unmarshal([]byte(fragment), &parsed); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to parse classification response")
		observability.RecordOracleFallback("classify")
		return defaultClassification()
	}

	// Everything that is not literally "archive" falls back to core_context.
	tier := TierCoreContext
	if parsed.Type == string(TierArchive) {
		tier = TierArchive
	}

	category := CategoryUnknown
	if s, ok := parsed.Category.(string); ok && strings.TrimSpace(s) != "" {
		category = strings.TrimSpace(s)
	}

	importance := DefaultImportance
	if n, ok := parsed.ImportanceScore.(float64); ok {
		importance = clamp01(n)
	}

	return Classification{Tier: tier, Category: category, Importance: importance}
}

func defaultClassification() Classification {
	return Classification{
		Tier:       TierCoreContext,
		Category:   CategoryUnknown,
		Importance: DefaultImportance,
	}
}
