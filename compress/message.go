// Package compress implements C6: old-log archival to disk-backed
// pointers, and an escalation ladder that summarizes message history
// down to a token budget.
package compress

// Message is the minimal shape compress operates over: CMC's other
// components each carry richer types (txstore.Transaction, awp
// payload entries); callers adapt to this before calling in.
type Message struct {
	Role      string
	Content   string
	Timestamp int64
}
