package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/ehrlich-b/wingterm/internal/conversation"
)

// printer writes conversation entries to a terminal as they arrive. A
// streaming reply is printed incrementally on one line until it is
// finalized or something else needs the terminal.
type printer struct {
	mu    sync.Mutex
	w     io.Writer
	shown map[string]string // streamed text already on screen, by entry id
	open  string            // entry whose line has no newline yet
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, shown: make(map[string]string)}
}

func (p *printer) Append(e conversation.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.endLine()
	if e.Kind == conversation.KindStreaming {
		fmt.Fprint(p.w, formatEntry(e))
		p.shown[e.ID] = e.Text
		p.open = e.ID
		return
	}
	fmt.Fprintln(p.w, formatEntry(e))
}

func (p *printer) Update(e conversation.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, streamed := p.shown[e.ID]
	if !streamed || !strings.HasPrefix(e.Text, prev) {
		// Replaced rather than extended: print the whole thing again.
		p.endLine()
		prev = ""
		fmt.Fprint(p.w, formatEntry(conversation.Entry{Role: e.Role, Kind: e.Kind}))
	} else if p.open != e.ID {
		p.endLine()
		fmt.Fprint(p.w, "ai> …")
	}
	fmt.Fprint(p.w, e.Text[len(prev):])
	p.open = e.ID

	if e.Final() {
		fmt.Fprintln(p.w)
		p.open = ""
		delete(p.shown, e.ID)
		return
	}
	p.shown[e.ID] = e.Text
}

// Notice prints a local message that is not part of the conversation.
func (p *printer) Notice(text string, isError bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	fmt.Fprintln(p.w, formatEntry(conversation.Entry{Role: conversation.RoleSystem, Kind: conversation.KindText, Text: text, IsError: isError}))
}

func (p *printer) endLine() {
	if p.open != "" {
		fmt.Fprintln(p.w)
		p.open = ""
	}
}

func formatEntry(e conversation.Entry) string {
	switch e.Kind {
	case conversation.KindTerminal:
		out := strings.TrimRight(e.Text, "\n")
		if e.IsError {
			return "! " + out
		}
		return out
	case conversation.KindToolLog:
		return "[tool] " + e.Text
	case conversation.KindDownload:
		if e.Download == nil {
			return "[download]"
		}
		return fmt.Sprintf("[download] %s (%s) %s", e.Download.Name, humanize.Bytes(uint64(max(e.Download.Size, 0))), e.Download.URL)
	}
	switch e.Role {
	case conversation.RoleUser:
		return "> " + e.Text
	case conversation.RoleAssistant:
		return "ai> " + e.Text
	default:
		if e.IsError {
			return "! " + e.Text
		}
		return "* " + e.Text
	}
}
