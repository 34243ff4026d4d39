package sse

import (
	"context"
	"strconv"

	"github.com/kbukum/podflow/logger"
	"github.com/kbukum/podflow/status"
)

// Source is what the status stream reads from.
type Source interface {
	Subscribe(buffer int) (<-chan status.Event, func())
	Status() status.Snapshot
}

// StatusBroadcaster forwards every status event to the status clients.
type StatusBroadcaster struct {
	hub    *Hub
	src    Source
	buffer int
	log    *logger.Logger
}

// NewStatusBroadcaster returns a broadcaster subscribing with buffer.
func NewStatusBroadcaster(hub *Hub, src Source, buffer int) *StatusBroadcaster {
	if buffer <= 0 {
		buffer = 1024
	}
	return &StatusBroadcaster{hub: hub, src: src, buffer: buffer, log: hub.log}
}

// Run subscribes and forwards events until ctx ends.
func (b *StatusBroadcaster) Run(ctx context.Context) {
	events, unsubscribe := b.src.Subscribe(b.buffer)
	defer unsubscribe()
	b.Forward(ctx, events)
}

// Forward broadcasts events until ctx ends or events closes.
func (b *StatusBroadcaster) Forward(ctx context.Context, events <-chan status.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame, err := StatusEvent(ev)
			if err != nil {
				b.log.Error("encoding status event failed", logger.ErrorFields("broadcast", err))
				continue
			}
			b.hub.Broadcast(StatusPattern, frame)
		}
	}
}

// StatusEvent encodes a store event. The SSE id is the store sequence, so
// clients can detect gaps.
func StatusEvent(ev status.Event) (Event, error) {
	return JSONEvent(EventTypeStatus, strconv.FormatUint(ev.Seq, 10), ev)
}

// SnapshotEvent encodes the whole status table.
func SnapshotEvent(snap status.Snapshot) (Event, error) {
	return JSONEvent(EventTypeSnapshot, strconv.FormatUint(snap.Version, 10), snap)
}
