package memory

import (
	"fmt"
	"time"
)

// Tier is the retention classification of a memory.
type Tier string

const (
	// TierCoreContext marks stable personal attributes and ongoing
	// situations that are always surfaced when generating replies.
	TierCoreContext Tier = "core_context"
	// TierArchive marks one-off events retained for search only.
	TierArchive Tier = "archive"
)

const (
	// CategoryUnknown is the placeholder category for statements the
	// classifier could not label.
	CategoryUnknown = "uncategorized"

	// DefaultDuplicateThreshold is the similarity at or above which a
	// candidate statement counts as a duplicate of an existing memory.
	DefaultDuplicateThreshold = 0.85

	// CoreContextLimit bounds how many core-context memories are surfaced
	// when building reply context.
	CoreContextLimit = 20

	// DefaultSearchLimit is the search result cap when the caller does not
	// supply one.
	DefaultSearchLimit = 10

	// DefaultImportance is used when the classifier yields no usable score.
	DefaultImportance = 0.5
)

// ParseTier converts a string into a Tier.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierCoreContext, TierArchive:
		return Tier(s), nil
	default:
		return "", fmt.Errorf("unknown memory tier: %q", s)
	}
}

// Record is one persisted memory.
type Record struct {
	ID             string     `json:"id"`
	Owner          string     `json:"owner"`
	ConversationID string     `json:"conversation_id,omitempty"`
	OriginalText   string     `json:"original_text"`
	StructuredText string     `json:"structured_text"`
	Tier           Tier       `json:"tier"`
	Category       string     `json:"category"`
	Importance     float64    `json:"importance"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Classification is the classifier's verdict for one statement.
type Classification struct {
	Tier       Tier    `json:"type"`
	Category   string  `json:"category"`
	Importance float64 `json:"importance_score"`
}

// SearchResult pairs a record with its transient relevance to a query.
// The score is computed per search and never persisted.
type SearchResult struct {
	Record    *Record `json:"record"`
	Relevance float64 `json:"relevance_score"`
}
