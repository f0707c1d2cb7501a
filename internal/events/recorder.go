package events

import "sync"

// Recorder is a Channel that keeps every event it receives. Tests use it to
// observe runs.
type Recorder struct {
	Base

	mu       sync.Mutex
	events   []Event
	delivery Delivery
	err      error
	closed   bool
}

// NewRecorder creates an immediate recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewBufferedRecorder creates a recorder that declares buffered delivery.
func NewBufferedRecorder() *Recorder {
	return &Recorder{delivery: Buffered}
}

// FailWith makes every method record the event and then return err.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) record(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *Recorder) Initialize(ev Event) error  { return r.record(ev) }
func (r *Recorder) StartServer(ev Event) error { return r.record(ev) }
func (r *Recorder) EndServer(ev Event) error   { return r.record(ev) }
func (r *Recorder) Log(ev Event) error         { return r.record(ev) }
func (r *Recorder) Finalize(ev Event) error    { return r.record(ev) }
func (r *Recorder) Delivery() Delivery         { return r.delivery }

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	evs := r.Events()
	out := make([]Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// ForServer returns the events about the named server, in order.
func (r *Recorder) ForServer(name string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.ServerName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
