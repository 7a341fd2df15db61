// Package memory implements the long-term memory pipeline: it decomposes
// user utterances into atomic factual statements, classifies each statement
// into a retention tier with an importance score, suppresses near-duplicates
// against the owner's existing memories, and serves two read paths (bounded
// core-context selection and ad-hoc lexical search).
//
// Invariants:
//   - Stored structured text is non-empty and trimmed.
//   - Importance is clamped to [0, 1] at write time.
//   - Core-context selection never exceeds the configured limit and never
//     includes archive-tier records.
//   - Oracle failures never escape the pipeline; they degrade to documented
//     fallback values.
//
// Usage:
//
//	eng, err := memory.NewEngine(memory.EngineConfig{Store: store, Oracle: llm, Logger: log})
//	if err != nil {
//		return err
//	}
//	records, err := eng.Ingest(ctx, ownerID, conversationID, "I live in Tokyo")
//	results, err := eng.Search(ctx, ownerID, "Tokyo", 10)
package memory
