// Package services defines the shared error taxonomy and context plumbing
// used by every pipeline stage.
//
// Stages tag failures with sentinel markers so the engine and CLI can
// classify them without string matching: ambiguous metadata matches abort
// the whole run, catalog faults degrade to per-record flags, and
// configuration problems stop the pipeline before it starts. Context
// helpers carry run and record identifiers so log lines stay correlated
// across stages.
package services
