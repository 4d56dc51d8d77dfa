// Package ingestion imports chat exports into a knowledge store.
//
// An import runs in stages:
//   - DecodeExport streams records out of the export document
//   - Normalizer maps each record onto a core.Conversation
//   - ResolveDuplicate applies the skip, overwrite or merge policy
//   - Pipeline stores, chunks and embeds each conversation on a worker pool
//
// Classification runs afterwards on its own pool and never fails an import.
// Per-conversation failures are collected in the Report instead of aborting
// the run.
package ingestion
