package upload

import (
	"math"
	"sync"

	"aarambh-client/internal/logger"
	"aarambh-client/pkg/errors"

	"github.com/rs/zerolog"
)

// State is the client-only progress record of one file. It is never
// persisted.
type State struct {
	Name     string `json:"name"`
	Progress int    `json:"progress"`
	Uploaded bool   `json:"uploaded"`
	Error    string `json:"error,omitempty"`
}

// Terminal reports whether the upload has finished, either way.
func (s State) Terminal() bool {
	return s.Uploaded || s.Error != ""
}

// Event is published on every state change.
type Event struct {
	File     FileIdentity `json:"file"`
	Name     string       `json:"name"`
	Progress int          `json:"progress"`
	Uploaded bool         `json:"uploaded"`
	Error    string       `json:"error,omitempty"`
	Removed  bool         `json:"removed,omitempty"`
}

// Tracker keeps per-file upload state for one submission dialog and
// publishes changes to subscribers.
type Tracker struct {
	mu     sync.Mutex
	states map[FileIdentity]State
	subs   map[int]chan Event
	nextID int
	log    zerolog.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[FileIdentity]State),
		subs:   make(map[int]chan Event),
		log:    logger.For("upload"),
	}
}

// Begin (re)initialises the state of f to {0, false} and returns its identity.
func (t *Tracker) Begin(f File) FileIdentity {
	id := f.Identity()

	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{Name: f.Name}
	t.states[id] = st
	t.publish(id, st)
	return id
}

// OnProgress records loaded/total bytes. Events for unknown or finished
// files are ignored; monotonicity is not enforced.
func (t *Tracker) OnProgress(id FileIdentity, loaded, total int64) {
	if total <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok || st.Terminal() {
		return
	}

	pct := int(math.Round(float64(loaded) / float64(total) * 100))
	if pct < 0 {
		pct = 0
	} else if pct > 100 {
		pct = 100
	}
	if pct == st.Progress {
		return
	}

	st.Progress = pct
	t.states[id] = st
	t.publish(id, st)
}

// OnComplete moves the file to its terminal state: uploaded on a nil err,
// failed with the error's message otherwise. Only the first call counts.
func (t *Tracker) OnComplete(id FileIdentity, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok || st.Terminal() {
		return
	}

	if err == nil {
		st.Progress = 100
		st.Uploaded = true
		st.Error = ""
	} else {
		st.Progress = 0
		st.Uploaded = false
		st.Error = errors.MessageOf(err, errors.UploadFailed)
		t.log.Warn().Str("file", st.Name).Str("kind", errors.KindOf(err).String()).Str("error", st.Error).Msg("Upload failed")
	}
	t.states[id] = st
	t.publish(id, st)
}

// Snapshot copies every tracked state.
func (t *Tracker) Snapshot() map[FileIdentity]State {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[FileIdentity]State, len(t.states))
	for id, st := range t.states {
		out[id] = st
	}
	return out
}

// Remove destroys the state of a file taken out of the selection.
func (t *Tracker) Remove(id FileIdentity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[id]
	if !ok {
		return
	}
	delete(t.states, id)
	t.publishEvent(Event{File: id, Name: st.Name, Removed: true})
}

// Reset destroys all states, as when the dialog closes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, st := range t.states {
		delete(t.states, id)
		t.publishEvent(Event{File: id, Name: st.Name, Removed: true})
	}
}

// Subscribe returns a stream of state changes and a cancel func that closes
// it. A subscriber that falls behind by more than buffer events misses
// intermediate progress; Snapshot stays authoritative.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// publish and publishEvent must be called with t.mu held.
func (t *Tracker) publish(id FileIdentity, st State) {
	t.publishEvent(Event{
		File:     id,
		Name:     st.Name,
		Progress: st.Progress,
		Uploaded: st.Uploaded,
		Error:    st.Error,
	})
}

func (t *Tracker) publishEvent(ev Event) {
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			t.log.Warn().Str("file", ev.Name).Msg("Upload event subscriber is full, event dropped")
		}
	}
}
