// Package record defines the per-file state threaded through the sync
// pipeline.
//
// A FileRecord is created by the planner, enriched by the metadata resolver
// and target finalizer, and read-only for the catalog diff planner. Records
// never outlive a single run.
package record

import "time"

// Row is a field→value mapping as returned by a metadata source.
type Row = map[string]string

// Integrity methods applied before transfer.
const (
	MethodWeakChecksum = "weak-checksum"
	MethodStrongHash   = "strong-hash"
)

// Outcome reasons. An empty reason with Verified=false indicates an
// unexplained verification failure. SkipReason only ever yields the first
// two; ReasonCopyFailed is set by the transfer stage when the copy itself
// errors, so reports can tell an I/O fault from a deliberate skip.
const (
	ReasonMetadataMissing  = "metadata_missing"
	ReasonChecksumMismatch = "checksum_mismatch"
	ReasonCopyFailed       = "copy_failed"
)

// Match names the metadata source and row that first satisfied a record's
// match rules.
type Match struct {
	Source string
	Row    Row
}

// Integrity captures the pre-transfer verification tier applied to a record.
// OK is tri-state: nil until a comparison was possible.
type Integrity struct {
	Method   string
	Computed string
	Expected string
	OK       *bool
}

// Presence captures the catalog presence check result for a record.
type Presence struct {
	ExistsInCatalog bool
	ExistingRow     Row
	MatchField      string
	MatchValue      string
	Unresolved      bool
}

// Outcome is assembled by the transfer executor; it is absent on records
// that have not reached that stage.
type Outcome struct {
	CopyAttempted bool
	Verified      bool
	SidecarType   string
	SidecarCopyOK bool
	Reason        string
}

// FileRecord is one discovered-and-matched source file moving through a run.
type FileRecord struct {
	Source  string // absolute source path
	RelPath string // path relative to the drop root
	Target  string // absolute target path

	Vars         *Vars
	MetaRows     map[string]Row
	PrimaryMatch *Match

	Integrity Integrity
	Presence  Presence
	Outcome   *Outcome

	ModTime time.Time
}

// New builds a FileRecord for a discovered source file.
func New(source, relPath string, modTime time.Time) *FileRecord {
	return &FileRecord{
		Source:   source,
		RelPath:  relPath,
		Vars:     NewVars(),
		MetaRows: make(map[string]Row),
		ModTime:  modTime,
	}
}

// Matched reports whether the record found a primary metadata match.
func (r *FileRecord) Matched() bool {
	return r.PrimaryMatch != nil
}

// RowFor returns the matched row for the named source, if any.
func (r *FileRecord) RowFor(source string) (Row, bool) {
	row, ok := r.MetaRows[source]
	return row, ok
}

// SkipReason returns the reason a record must not reach the copy step, or ""
// when the record is eligible for transfer.
func (r *FileRecord) SkipReason(metadataRequired bool) string {
	if r.Integrity.OK != nil && !*r.Integrity.OK {
		return ReasonChecksumMismatch
	}
	if metadataRequired && !r.Matched() {
		return ReasonMetadataMissing
	}
	return ""
}
