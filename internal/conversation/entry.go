package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind is what an entry's content is.
type Kind string

const (
	KindText      Kind = "text"      // finished text
	KindStreaming Kind = "streaming" // assistant text still receiving deltas
	KindTerminal  Kind = "terminal"
	KindToolLog   Kind = "tool_log"
	KindDownload  Kind = "download"
)

// Download describes a file the backend made available.
type Download struct {
	URL  string
	Name string
	Size int64
}

// Entry is one line of the conversation. Entries returned by Log are
// copies; mutating them does not affect the log.
type Entry struct {
	ID            string
	Role          Role
	Kind          Kind
	Text          string
	IsError       bool // terminal output written to stderr or failing
	Download      *Download
	Timestamp     time.Time
	CorrelationID string // empty for unsolicited and tool-log entries
}

// Final reports whether the entry will not change again.
func (e Entry) Final() bool {
	return e.Kind != KindStreaming
}
