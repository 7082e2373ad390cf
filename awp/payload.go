// Package awp implements C7: the Active Window Pipeline, a filtering
// middleware that shapes the transaction store's tail into a
// provider-bound payload before it leaves the process.
package awp

// Kind tags the variant a PayloadEntry carries.
type Kind string

const (
	KindUserPrompt     Kind = "user_prompt"
	KindToolResult     Kind = "tool_result"
	KindAssistantReply Kind = "assistant_reply"
	KindSystem         Kind = "system"
	KindThought        Kind = "thought"
	KindPointer        Kind = "pointer"
)

// Priority marks how aggressively AWP may discard an entry. Entries
// tagged PriorityCritical are never removed by light or aggressive
// cleaning, regardless of Kind.
type Priority string

const (
	PriorityNormal   Priority = "normal"
	PriorityCritical Priority = "critical"
)

// PayloadEntry is one turn in a payload's message window.
type PayloadEntry struct {
	Kind     Kind
	Content  string
	Priority Priority
	Metadata map[string]any
}

// Payload is the shape AWP filters: a message window plus whatever
// provider-addressed fields the caller attaches.
type Payload struct {
	Messages []PayloadEntry
	Model    string
	Extra    map[string]any
}
