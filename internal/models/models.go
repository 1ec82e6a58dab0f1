// Package models holds the data types shared across the agent's pipeline
// stages: the line events a Collector emits, the batches a Forwarder closes,
// and the source specs read from configuration.
package models

import "time"

// LineEvent is one appended, newline-stripped line read from a source file.
// Immutable once emitted.
type LineEvent struct {
	Label      string
	Line       string
	ObservedAt time.Time
}

// Batch is a closed, non-empty, ordered group of LineEvents ready for
// transmission. ID is unique for the agent's lifetime.
type Batch struct {
	ID     string
	SendAt time.Time
	Logs   []LineEvent
}

// SourceSpec names one file a Collector tails. The (Label, Path) pair is the
// identity of a source: two specs sharing a label but not a path are distinct.
type SourceSpec struct {
	Label string
	Path  string
}
