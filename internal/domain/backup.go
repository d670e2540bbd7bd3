package domain

// TimestampLayout is the canonical minute-resolution snapshot name.
// Lexical order over names equals chronological order, which listing
// and pruning rely on.
const TimestampLayout = "2006-01-02_15:04"

// SnapshotKind distinguishes real transfers from same-run references.
type SnapshotKind string

const (
	// SnapshotMaterialized owns actually transferred data.
	SnapshotMaterialized SnapshotKind = "materialized"
	// SnapshotLinked is a same-run hardlink reference to a materialized
	// snapshot. It has no independent data and must never outlive the
	// snapshot it references.
	SnapshotLinked SnapshotKind = "linked"
)

// RetentionTier is a named backup granularity with its own cron
// schedule and keep count.
type RetentionTier struct {
	Name     string
	Schedule string // 5-field cron expression
	Keep     int    // snapshots to keep; 0 = unlimited
}

// Snapshot is one entry under a tier's storage directory.
type Snapshot struct {
	Tier       string
	Timestamp  string // TimestampLayout
	Path       string
	Kind       SnapshotKind
	LinkedFrom string // "<tier>/<timestamp>" of the materialized original
}

// Ref returns the "<tier>/<timestamp>" identifier linked snapshots use
// to reference their materialized original.
func (s Snapshot) Ref() string { return s.Tier + "/" + s.Timestamp }

// Destination binds a source path, a transfer method identifier, a
// storage root and an ordered set of retention tiers. Tier order is the
// rotation precedence: the first due tier materializes, the finest
// granularity listed first.
type Destination struct {
	Name       string
	SourcePath string
	Method     string
	Path       string
	Tiers      []RetentionTier
}

// Source groups one local directory with the destinations it backs
// up to.
type Source struct {
	Path         string
	Destinations []Destination
}
