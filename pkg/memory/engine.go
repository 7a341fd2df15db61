package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/hikaru/kioku/internal/observability"
	"github.com/hikaru/kioku/internal/tracing"
	"github.com/hikaru/kioku/pkg/oracle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "kioku.memory"

// Engine composes the structurizer, classifier, duplicate guard, and store
// into the ingest pipeline and the two read paths.
type Engine struct {
	store        Store
	structurizer *Structurizer
	classifier   *Classifier
	logger       zerolog.Logger
	threshold    float64
	coreLimit    int
	searchLimit  int
}

// EngineConfig holds engine construction parameters.
type EngineConfig struct {
	Store  Store
	Oracle oracle.Oracle
	Logger zerolog.Logger

	// DuplicateThreshold defaults to DefaultDuplicateThreshold.
	DuplicateThreshold float64
	// CoreContextLimit defaults to CoreContextLimit.
	CoreContextLimit int
	// SearchLimit defaults to DefaultSearchLimit.
	SearchLimit int
}

// NewEngine creates a new memory engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Oracle == nil {
		return nil, errors.New("oracle is required")
	}
	if cfg.DuplicateThreshold <= 0 {
		cfg.DuplicateThreshold = DefaultDuplicateThreshold
	}
	if cfg.CoreContextLimit <= 0 {
		cfg.CoreContextLimit = CoreContextLimit
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}

	return &Engine{
		store:        cfg.Store,
		structurizer: NewStructurizer(cfg.Oracle, cfg.Logger),
		classifier:   NewClassifier(cfg.Oracle, cfg.Logger),
		logger:       cfg.Logger,
		threshold:    cfg.DuplicateThreshold,
		coreLimit:    cfg.CoreContextLimit,
		searchLimit:  cfg.SearchLimit,
	}, nil
}

// Ingest runs the full pipeline for one utterance: structurize, then per
// statement dedupe, classify, and insert. It returns the records actually
// created, which may be empty both when the utterance yielded no facts and
// when every fact was a duplicate.
//
// The duplicate check and the following insert are not atomic: two
// concurrent ingests of near-identical statements for the same owner can
// both pass the guard and both insert. That race is accepted; serializing
// per owner would change observable behavior.
//
// A store failure aborts the remainder of the utterance but does not roll
// back statements already inserted.
func (e *Engine) Ingest(ctx context.Context, owner, conversationID, utterance string) ([]*Record, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.ingest",
		attribute.String("owner", owner),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordIngestDuration(time.Since(start))
	}()

	statements := e.structurizer.Structurize(ctx, utterance)
	if len(statements) == 0 {
		e.logger.Debug().Str("owner", owner).Msg("No statements extracted from utterance")
		return nil, nil
	}

	var created []*Record
	for _, statement := range statements {
		duplicate, err := e.IsDuplicate(ctx, owner, statement, e.threshold)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return created, fmt.Errorf("duplicate check failed: %w", err)
		}
		if duplicate {
			observability.RecordIngestOutcome("duplicate")
			e.logger.Debug().Str("owner", owner).Str("statement", statement).
				Msg("Skipping duplicate statement")
			continue
		}

		classification := e.classifier.Classify(ctx, statement)

		record, err := e.store.Insert(ctx, InsertParams{
			Owner:          owner,
			ConversationID: conversationID,
			OriginalText:   utterance,
			StructuredText: statement,
			Tier:           classification.Tier,
			Category:       classification.Category,
			Importance:     classification.Importance,
		})
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return created, fmt.Errorf("failed to persist statement: %w", err)
		}

		observability.RecordIngestOutcome("stored")
		created = append(created, record)
	}

	span.SetAttributes(attribute.Int("records_created", len(created)))
	return created, nil
}

// IsDuplicate reports whether the candidate text already exists among the
// owner's memories, exactly or with edit-distance similarity at or above
// threshold. Both tiers count.
func (e *Engine) IsDuplicate(ctx context.Context, owner, candidate string, threshold float64) (bool, error) {
	existing, err := e.store.Scan(ctx, owner, nil)
	if err != nil {
		return false, err
	}

	for _, record := range existing {
		if record.StructuredText == candidate {
			return true, nil
		}
	}

	for _, record := range existing {
		if meetsThreshold(candidate, record.StructuredText, threshold) {
			return true, nil
		}
	}

	return false, nil
}

// CoreContext returns the owner's core_context memories ordered by
// importance descending (most recent first on ties), capped at the
// configured limit.
func (e *Engine) CoreContext(ctx context.Context, owner string) ([]*Record, error) {
	tier := TierCoreContext
	records, _, err := e.store.List(ctx, owner, &tier, e.coreLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load core context: %w", err)
	}
	return records, nil
}

// Search scans all of the owner's memories across both tiers, scores each
// against the query with the edit-distance similarity, and returns the top
// limit results ordered by descending relevance. No minimum score is
// applied; low-relevance results stand when nothing better exists.
func (e *Engine) Search(ctx context.Context, owner, query string, limit int) ([]SearchResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "memory.search",
		attribute.String("owner", owner),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observability.RecordSearchDuration(time.Since(start))
	}()

	if limit <= 0 {
		limit = e.searchLimit
	}

	records, err := e.store.Scan(ctx, owner, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}

	results := make([]SearchResult, 0, len(records))
	for _, record := range records {
		results = append(results, SearchResult{
			Record:    record,
			Relevance: Similarity(query, record.StructuredText),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	if len(results) > limit {
		results = results[:limit]
	}

	span.SetAttributes(attribute.Int("results", len(results)))
	return results, nil
}

// List returns a paged, importance-ordered window over the owner's
// memories plus the total count, for administrative browsing.
func (e *Engine) List(ctx context.Context, owner string, tier *Tier, limit, offset int) ([]*Record, int, error) {
	return e.store.List(ctx, owner, tier, limit, offset)
}

// Get loads one memory scoped to its owner; (nil, nil) when absent.
func (e *Engine) Get(ctx context.Context, owner, id string) (*Record, error) {
	return e.store.Get(ctx, owner, id)
}

// Delete removes one memory scoped to its owner. A false result means no
// row was removed, which is not an error.
func (e *Engine) Delete(ctx context.Context, owner, id string) (bool, error) {
	removed, err := e.store.Delete(ctx, owner, id)
	if err != nil {
		return false, err
	}
	if removed {
		observability.RecordMemoryDeleted()
	}
	return removed, nil
}

// RecordAccess increments the access counter for an already-authorized id.
func (e *Engine) RecordAccess(ctx context.Context, id string) error {
	return e.store.RecordAccess(ctx, id)
}
