package session

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"wisochat/pkg/transcript"
	"wisochat/pkg/transport"
)

var (
	// ErrAlreadyStarted is returned by Start while a session is active.
	ErrAlreadyStarted = errors.New("session already started")
	// ErrSessionEnded is returned by Start once the session has ended.
	ErrSessionEnded = errors.New("session ended")
)

type state int

const (
	stateInactive state = iota
	stateActive
	stateEnded
)

// Change describes one transcript append.
type Change struct {
	Len   int
	Entry transcript.Entry
}

// ChangeFunc observes transcript appends.
type ChangeFunc func(Change)

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(log *slog.Logger) Option {
	return func(s *Synchronizer) {
		if log != nil {
			s.log = log
		}
	}
}

// Synchronizer owns the transcript, the composition buffer and the inbound
// subscription of one chat session. It is the only writer of transcript
// entries.
type Synchronizer struct {
	adapter transport.Adapter
	log     *slog.Logger

	mu          sync.Mutex
	state       state
	sub         transport.Subscription
	transcript  *transcript.Transcript
	composition string
	pickerOpen  bool
	onChange    ChangeFunc
}

// New builds a Synchronizer around adapter.
func New(adapter transport.Adapter, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		adapter:    adapter,
		log:        slog.Default(),
		transcript: transcript.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "session")

	return s
}

// OnChange sets the listener notified after every transcript append. The
// listener runs outside the internal lock.
func (s *Synchronizer) OnChange(fn ChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Start subscribes to inbound messages. It may succeed at most once.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateActive:
		return ErrAlreadyStarted
	case stateEnded:
		return ErrSessionEnded
	}

	s.state = stateActive
	s.mu.Unlock()

	sub := s.adapter.Subscribe(s.handleInbound)

	s.mu.Lock()
	if s.state == stateEnded {
		// End ran while subscribing.
		sub.Release()
		return nil
	}
	s.sub = sub
	s.log.Debug("Session started")

	return nil
}

// End releases the inbound subscription. Later calls do nothing.
func (s *Synchronizer) End() {
	s.mu.Lock()
	if s.state == stateEnded {
		s.mu.Unlock()
		return
	}

	sub := s.sub
	s.sub = nil
	s.state = stateEnded
	entries := s.transcript.Len()
	s.mu.Unlock()

	if sub != nil {
		sub.Release()
	}
	s.log.Debug("Session ended", "entries", entries)
}

// Active reports whether the session is between Start and End.
func (s *Synchronizer) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

func (s *Synchronizer) handleInbound(text string) {
	if !s.ReceiveRemote(text) {
		s.log.Debug("Dropped late delivery")
	}
}

// ReceiveRemote appends a peer entry. Text is stored verbatim, empty
// included. It reports false when the session is not active.
func (s *Synchronizer) ReceiveRemote(text string) bool {
	s.mu.Lock()
	if s.state != stateActive {
		s.mu.Unlock()
		return false
	}

	change := s.appendLocked(transcript.Entry{Body: text, Origin: transcript.Peer})
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(change)
	}

	return true
}

// Submit sends the current composition buffer.
func (s *Synchronizer) Submit() bool {
	return s.SubmitText(s.Composition())
}

// SubmitText echoes text into the transcript and forwards it to the
// adapter. Blank text is ignored and leaves the composition untouched.
// The local entry is never rolled back. Its change is reported before the
// send, so a synchronous echo is always reported after it.
func (s *Synchronizer) SubmitText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.state == stateEnded {
		s.mu.Unlock()
		return false
	}

	change := s.appendLocked(transcript.Entry{Body: text, Origin: transcript.Self})
	s.composition = ""
	s.pickerOpen = false
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(change)
	}

	s.adapter.Send(text)
	return true
}

func (s *Synchronizer) appendLocked(entry transcript.Entry) Change {
	n := s.transcript.Append(entry)
	return Change{Len: n, Entry: entry}
}

// Composition returns the unsent message text.
func (s *Synchronizer) Composition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composition
}

// SetComposition replaces the unsent message text.
func (s *Synchronizer) SetComposition(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateEnded {
		return
	}
	s.composition = text
}

// AppendToComposition concatenates fragment onto the unsent message text.
func (s *Synchronizer) AppendToComposition(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateEnded {
		return
	}
	s.composition += fragment
}

// TogglePicker flips the emoji picker visibility and returns the new value.
func (s *Synchronizer) TogglePicker() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pickerOpen = !s.pickerOpen
	return s.pickerOpen
}

// PickerOpen reports whether the emoji picker is shown.
func (s *Synchronizer) PickerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pickerOpen
}

// Transcript returns a snapshot of the entries in display order.
func (s *Synchronizer) Transcript() []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Entries()
}

// Len returns the transcript length.
func (s *Synchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Len()
}

// Count returns how many transcript entries carry origin.
func (s *Synchronizer) Count(origin transcript.Origin) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Count(origin)
}
