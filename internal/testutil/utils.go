package testutil

import (
	"log"
	"os"
	"sync"
	"testing"

	"github.com/npezzotti/go-workspace-chat/internal/types"
)

func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "[test] ", log.LstdFlags)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}

type RecordedEvent struct {
	Room    types.RoomId
	Name    string
	Payload any
}

type Eviction struct {
	Room   types.RoomId
	UserId string
}

// Recorder stands in for the realtime hub and keeps everything it is asked
// to broadcast.
type Recorder struct {
	mu        sync.Mutex
	events    []RecordedEvent
	evictions []Eviction
}

func (r *Recorder) Broadcast(room types.RoomId, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, RecordedEvent{Room: room, Name: event, Payload: payload})
}

func (r *Recorder) LeaveRoomForUser(room types.RoomId, userId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, Eviction{Room: room, UserId: userId})
}

func (r *Recorder) Events() []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RecordedEvent(nil), r.events...)
}

// EventsFor returns the events broadcast to room, oldest first.
func (r *Recorder) EventsFor(room types.RoomId) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []RecordedEvent
	for _, e := range r.events {
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Evictions() []Eviction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Eviction(nil), r.evictions...)
}
