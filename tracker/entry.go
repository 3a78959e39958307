package tracker

import "time"

// TriggerType describes how the suggestion was invoked.
type TriggerType string

const (
	TriggerOnDemand TriggerType = "on_demand"
	TriggerAuto     TriggerType = "auto"
)

// CompletionType describes the shape of the suggestion.
type CompletionType string

const (
	CompletionLine  CompletionType = "line"
	CompletionBlock CompletionType = "block"
)

// Location identifies where an accepted suggestion was inserted, so the
// current content can be re-read at flush time.
type Location struct {
	Path      string
	StartByte int
	EndByte   int
}

// Entry is one accepted suggestion awaiting evaluation. All fields are set
// at accept time and never change; an entry is removed from the buffer once
// its telemetry has been emitted and is never revisited.
type Entry struct {
	AcceptedAt      time.Time
	RequestID       string
	SessionID       string
	Trigger         TriggerType
	SuggestionIndex int
	Completion      CompletionType
	Language        string
	OriginalText    string
	Location        Location
}

// age returns how long ago the entry was accepted relative to now.
func (e *Entry) age(now time.Time) time.Duration {
	return now.Sub(e.AcceptedAt)
}
