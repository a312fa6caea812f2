// Package eventstest provides an in-memory booking.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"github.com/hackgods/appointment-booking-engine/internal/booking"
)

// Recorder keeps every event and job it is given, in order.
type Recorder struct {
	mu     sync.Mutex
	events []booking.Event
	jobs   []booking.Job
}

func (r *Recorder) PublishEvent(_ context.Context, ev booking.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) PublishJob(_ context.Context, job booking.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	return nil
}

func (r *Recorder) Events() []booking.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]booking.Event(nil), r.events...)
}

func (r *Recorder) Jobs() []booking.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]booking.Job(nil), r.jobs...)
}

// EventTypes lists the recorded event types in emission order.
func (r *Recorder) EventTypes() []booking.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]booking.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events, r.jobs = nil, nil
}
