package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Event types written on the "event:" line.
const (
	EventTypeConnected = "connected"
	EventTypeSnapshot  = "snapshot"
	EventTypeStatus    = "status"
	EventTypeError     = "error"
)

// Event is one SSE frame.
type Event struct {
	ID   string
	Type string
	Data []byte
}

// JSONEvent marshals v into an event of type typ.
func JSONEvent(typ, id string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("encoding %s event: %w", typ, err)
	}
	return Event{ID: id, Type: typ, Data: data}, nil
}

// WriteTo writes the frame in wire format. Multi-line data is split across
// data lines.
func (e Event) WriteTo(w io.Writer) (int64, error) {
	var b strings.Builder
	if e.ID != "" {
		b.WriteString("id: " + e.ID + "\n")
	}
	if e.Type != "" {
		b.WriteString("event: " + e.Type + "\n")
	}
	for _, line := range strings.Split(string(e.Data), "\n") {
		b.WriteString("data: " + line + "\n")
	}
	b.WriteString("\n")
	n, err := io.WriteString(w, b.String())
	return int64(n), err
}
