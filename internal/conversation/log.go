package conversation

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/wingterm/internal/logger"
	"github.com/ehrlich-b/wingterm/internal/protocol"
)

// record is the mutable backing store for one entry. Streaming text lives
// in buf so each delta is an amortized O(1) append.
type record struct {
	entry Entry
	buf   strings.Builder
}

func (r *record) snapshot() Entry {
	e := r.entry
	if e.Kind == KindStreaming {
		e.Text = r.buf.String()
	}
	if e.Download != nil {
		d := *e.Download
		e.Download = &d
	}
	return e
}

// Log is the ordered, append-only conversation. Events are applied in the
// order Apply is called; nothing is buffered or reordered.
type Log struct {
	// OnAppend is called with each new entry, OnUpdate each time an
	// existing entry changes. Both run with the log unlocked, on the
	// goroutine that caused the change.
	OnAppend func(Entry)
	OnUpdate func(Entry)

	Now   func() time.Time
	NewID func() string

	mu      sync.Mutex
	records []*record
	// replies maps a correlation id to the index of its assistant text entry.
	replies map[string]int
}

func NewLog() *Log {
	return &Log{replies: make(map[string]int)}
}

// Entries returns a snapshot of the conversation.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.records))
	for i, r := range l.records {
		out[i] = r.snapshot()
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// AddUser records what the user sent for the command with correlationID.
func (l *Log) AddUser(text, correlationID string) Entry {
	return l.appendEntry(Entry{Role: RoleUser, Kind: KindText, Text: text, CorrelationID: correlationID})
}

// AddSystem records a local notice such as a validation or send error.
func (l *Log) AddSystem(text string, isError bool) Entry {
	return l.appendEntry(Entry{Role: RoleSystem, Kind: KindText, Text: text, IsError: isError})
}

// Apply folds one server event into the conversation.
func (l *Log) Apply(ev protocol.Event) {
	switch ev := ev.(type) {
	case protocol.AssistantDelta:
		l.applyDelta(ev)
	case protocol.AssistantDone:
		l.applyDone(ev)
	case protocol.TerminalOutput:
		l.appendEntry(Entry{
			Role:          RoleAssistant,
			Kind:          KindTerminal,
			Text:          ev.Output,
			IsError:       ev.IsError,
			CorrelationID: ev.ClientMessageID,
		})
	case protocol.ToolLog:
		l.appendEntry(Entry{Role: RoleSystem, Kind: KindToolLog, Text: ev.Message})
	case protocol.DownloadReady:
		l.appendEntry(Entry{
			Role:          RoleAssistant,
			Kind:          KindDownload,
			Text:          ev.FileName,
			Download:      &Download{URL: ev.URL, Name: ev.FileName, Size: ev.FileSize},
			CorrelationID: ev.ClientMessageID,
		})
	}
}

func (l *Log) applyDelta(ev protocol.AssistantDelta) {
	l.mu.Lock()
	idx, ok := l.replies[ev.ClientMessageID]
	if !ok {
		l.mu.Unlock()
		l.appendEntry(Entry{
			Role:          RoleAssistant,
			Kind:          KindStreaming,
			Text:          ev.Text,
			CorrelationID: ev.ClientMessageID,
		})
		return
	}
	r := l.records[idx]
	if r.entry.Kind != KindStreaming {
		// Already finalized; a late delta must not reopen it.
		l.mu.Unlock()
		logger.Debug("delta after final", "id", ev.ClientMessageID)
		return
	}
	r.buf.WriteString(ev.Text)
	snap := r.snapshot()
	l.mu.Unlock()
	l.updated(snap)
}

func (l *Log) applyDone(ev protocol.AssistantDone) {
	l.mu.Lock()
	idx, ok := l.replies[ev.ClientMessageID]
	if !ok {
		l.mu.Unlock()
		l.appendEntry(Entry{
			Role:          RoleAssistant,
			Kind:          KindText,
			Text:          ev.Text,
			CorrelationID: ev.ClientMessageID,
		})
		return
	}
	r := l.records[idx]
	r.entry.Kind = KindText
	r.entry.Text = ev.Text
	r.buf.Reset()
	snap := r.snapshot()
	l.mu.Unlock()
	l.updated(snap)
}

func (l *Log) appendEntry(e Entry) Entry {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	if l.replies == nil {
		l.replies = make(map[string]int)
	}
	r := &record{entry: e}
	if e.Kind == KindStreaming {
		r.buf.WriteString(e.Text)
		r.entry.Text = ""
	}
	l.records = append(l.records, r)
	if e.Role == RoleAssistant && (e.Kind == KindStreaming || e.Kind == KindText) && e.CorrelationID != "" {
		l.replies[e.CorrelationID] = len(l.records) - 1
	}
	snap := r.snapshot()
	l.mu.Unlock()

	if l.OnAppend != nil {
		l.OnAppend(snap)
	}
	return snap
}

func (l *Log) updated(e Entry) {
	if l.OnUpdate != nil {
		l.OnUpdate(e)
	}
}

func (l *Log) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Log) newID() string {
	if l.NewID != nil {
		return l.NewID()
	}
	return uuid.NewString()
}
