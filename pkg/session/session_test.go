package session

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"wisochat/pkg/transcript"
	"wisochat/pkg/transport"
	"wisochat/pkg/transport/loopback"
)

type recordingAdapter struct {
	mu       sync.Mutex
	sent     []string
	handlers []transport.Handler
	released int
}

func (a *recordingAdapter) Send(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, text)
}

// Subscribe keeps the handler even after release so tests can simulate a
// misbehaving transport delivering late events.
func (a *recordingAdapter) Subscribe(handler transport.Handler) transport.Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers = append(a.handlers, handler)
	return releaseFunc(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.released++
	})
}

func (a *recordingAdapter) deliver(text string) {
	a.mu.Lock()
	handlers := append([]transport.Handler(nil), a.handlers...)
	a.mu.Unlock()

	for _, handler := range handlers {
		handler(text)
	}
}

func (a *recordingAdapter) snapshot() ([]string, int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.sent...), len(a.handlers), a.released
}

type releaseFunc func()

func (f releaseFunc) Release() { f() }

func startedSession(t *testing.T) (*Synchronizer, *recordingAdapter) {
	t.Helper()

	adapter := &recordingAdapter{}
	s := New(adapter)
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(s.End)

	return s, adapter
}

func TestStartRegistersExactlyOneHandler(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	if !s.Active() {
		t.Fatal("expected session to be active after Start")
	}

	_, subscriptions, _ := adapter.snapshot()
	if subscriptions != 1 {
		t.Fatalf("subscriptions = %d, want 1", subscriptions)
	}
}

func TestStartTwiceIsRejected(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	if err := s.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start error = %v, want %v", err, ErrAlreadyStarted)
	}

	_, subscriptions, _ := adapter.snapshot()
	if subscriptions != 1 {
		t.Fatalf("subscriptions = %d, want 1", subscriptions)
	}
}

func TestStartAfterEndIsRejected(t *testing.T) {
	t.Parallel()

	s, _ := startedSession(t)
	s.End()

	if err := s.Start(); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("Start after End error = %v, want %v", err, ErrSessionEnded)
	}
}

func TestTranscriptFollowsCallOrder(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	s.SubmitText("a")
	adapter.deliver("b")
	s.SubmitText("c")

	want := []transcript.Entry{
		{Body: "a", Origin: transcript.Self},
		{Body: "b", Origin: transcript.Peer},
		{Body: "c", Origin: transcript.Self},
	}
	if got := s.Transcript(); !reflect.DeepEqual(got, want) {
		t.Fatalf("transcript = %#v, want %#v", got, want)
	}
}

func TestBlankSubmissionsAreNoOps(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	s.SetComposition("   ")

	for _, text := range []string{"", "   ", "\t\n"} {
		if s.SubmitText(text) {
			t.Fatalf("SubmitText(%q) = true, want false", text)
		}
	}
	if s.Submit() {
		t.Fatal("Submit with blank composition = true, want false")
	}

	sent, _, _ := adapter.snapshot()
	if len(sent) != 0 {
		t.Fatalf("sent = %#v, want none", sent)
	}
	if s.Len() != 0 {
		t.Fatalf("transcript length = %d, want 0", s.Len())
	}
	if got := s.Composition(); got != "   " {
		t.Fatalf("composition = %q, want untouched %q", got, "   ")
	}
}

func TestSubmitSendsOnceAndClearsComposition(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	s.SetComposition("hello")
	s.TogglePicker()

	if !s.Submit() {
		t.Fatal("Submit = false, want true")
	}

	sent, _, _ := adapter.snapshot()
	if !reflect.DeepEqual(sent, []string{"hello"}) {
		t.Fatalf("sent = %#v, want [hello]", sent)
	}
	if got := s.Composition(); got != "" {
		t.Fatalf("composition = %q, want empty", got)
	}
	if s.PickerOpen() {
		t.Fatal("expected picker to close on submit")
	}
}

func TestSubmitKeepsUntrimmedText(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	s.SubmitText("  padded  ")

	entries := s.Transcript()
	if len(entries) != 1 || entries[0].Body != "  padded  " {
		t.Fatalf("transcript = %#v, want untrimmed body", entries)
	}
	sent, _, _ := adapter.snapshot()
	if !reflect.DeepEqual(sent, []string{"  padded  "}) {
		t.Fatalf("sent = %#v, want untrimmed text", sent)
	}
}

func TestEchoIsAppendedBeforeSend(t *testing.T) {
	t.Parallel()

	var lenAtSend int
	adapter := &sendHook{}
	s := New(adapter)
	adapter.onSend = func(string) { lenAtSend = s.Len() }

	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.End()

	s.SubmitText("optimistic")
	if lenAtSend != 1 {
		t.Fatalf("transcript length at send = %d, want 1", lenAtSend)
	}
}

type sendHook struct {
	onSend func(string)
}

func (p *sendHook) Send(text string) { p.onSend(text) }

func (p *sendHook) Subscribe(transport.Handler) transport.Subscription {
	return releaseFunc(func() {})
}

func TestRemoteEmptyMessagesAreKept(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	adapter.deliver("")

	entries := s.Transcript()
	if len(entries) != 1 || entries[0].Origin != transcript.Peer || entries[0].Body != "" {
		t.Fatalf("transcript = %#v, want one empty peer entry", entries)
	}
}

func TestAppendToComposition(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	s.SetComposition("hi ")
	s.AppendToComposition("😀")
	if got := s.Composition(); got != "hi 😀" {
		t.Fatalf("composition = %q, want %q", got, "hi 😀")
	}

	adapter.deliver("unrelated")
	if got := s.Composition(); got != "hi 😀" {
		t.Fatalf("composition after remote = %q, want %q", got, "hi 😀")
	}
}

func TestLengthCountsOnlyNonEmptyOperations(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)
	ops := []struct {
		remote bool
		text   string
	}{
		{text: "one"},
		{text: " "},
		{remote: true, text: "two"},
		{text: ""},
		{remote: true, text: "three"},
		{text: "four"},
	}

	for _, op := range ops {
		if op.remote {
			adapter.deliver(op.text)
			continue
		}
		s.SubmitText(op.text)
	}

	if got := s.Len(); got != 4 {
		t.Fatalf("transcript length = %d, want 4", got)
	}
	if self, peer := s.Count(transcript.Self), s.Count(transcript.Peer); self != 2 || peer != 2 {
		t.Fatalf("counts = self %d peer %d, want 2 and 2", self, peer)
	}
}

func TestEndReleasesOnceAndIgnoresLateDelivery(t *testing.T) {
	t.Parallel()

	adapter := &recordingAdapter{}
	s := New(adapter)
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	adapter.deliver("before")
	s.End()
	adapter.deliver("late")
	s.End()

	_, _, released := adapter.snapshot()
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
	if s.Active() {
		t.Fatal("expected session inactive after End")
	}

	entries := s.Transcript()
	if len(entries) != 1 || entries[0].Body != "before" {
		t.Fatalf("transcript = %#v, want only the pre-teardown entry", entries)
	}
	if s.ReceiveRemote("direct") {
		t.Fatal("ReceiveRemote after End = true, want false")
	}
}

func TestEndWithoutMessages(t *testing.T) {
	t.Parallel()

	adapter := &recordingAdapter{}
	s := New(adapter)
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	s.End()

	_, _, released := adapter.snapshot()
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
}

func TestEndBeforeStartSkipsAdapter(t *testing.T) {
	t.Parallel()

	adapter := &recordingAdapter{}
	s := New(adapter)
	s.End()

	_, subscriptions, released := adapter.snapshot()
	if subscriptions != 0 || released != 0 {
		t.Fatalf("subscriptions=%d released=%d, want 0/0", subscriptions, released)
	}
	if err := s.Start(); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("Start error = %v, want %v", err, ErrSessionEnded)
	}
}

func TestCompositionIsFrozenAfterEnd(t *testing.T) {
	t.Parallel()

	s, _ := startedSession(t)
	s.SetComposition("draft")
	s.End()

	s.AppendToComposition("!")
	s.SetComposition("other")
	if got := s.Composition(); got != "draft" {
		t.Fatalf("composition = %q, want %q", got, "draft")
	}
	if s.SubmitText("after") {
		t.Fatal("SubmitText after End = true, want false")
	}
}

func TestOnChangeReportsEachAppend(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)

	var changes []Change
	s.OnChange(func(c Change) {
		changes = append(changes, c)
		// Listeners run outside the lock and may read back.
		_ = s.Len()
	})

	s.SubmitText("mine")
	s.SubmitText(" ")
	adapter.deliver("theirs")

	want := []Change{
		{Len: 1, Entry: transcript.Entry{Body: "mine", Origin: transcript.Self}},
		{Len: 2, Entry: transcript.Entry{Body: "theirs", Origin: transcript.Peer}},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes = %#v, want %#v", changes, want)
	}
}

func TestSynchronousEchoIsReportedAfterOwnMessage(t *testing.T) {
	t.Parallel()

	s := New(loopback.New(loopback.WithEcho("echo: ")))
	var changes []Change
	s.OnChange(func(c Change) { changes = append(changes, c) })
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.End()

	s.SubmitText("hola")

	want := []Change{
		{Len: 1, Entry: transcript.Entry{Body: "hola", Origin: transcript.Self}},
		{Len: 2, Entry: transcript.Entry{Body: "echo: hola", Origin: transcript.Peer}},
	}
	if !reflect.DeepEqual(changes, want) {
		t.Fatalf("changes = %#v, want %#v", changes, want)
	}
}

func TestDispatcherBackedSessionUnsubscribes(t *testing.T) {
	t.Parallel()

	d := transport.NewDispatcher()
	adapter := &dispatcherAdapter{Dispatcher: d}
	s := New(adapter)
	if err := s.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	d.Deliver("live")
	s.End()
	if n := d.Deliver("late"); n != 0 {
		t.Fatalf("late delivery reached %d handlers, want 0", n)
	}
	if got := s.Len(); got != 1 {
		t.Fatalf("transcript length = %d, want 1", got)
	}
}

type dispatcherAdapter struct {
	*transport.Dispatcher
}

func (dispatcherAdapter) Send(string) {}

func TestConcurrentReceiveAndSubmit(t *testing.T) {
	t.Parallel()

	s, adapter := startedSession(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			adapter.deliver("in")
		}()
		go func() {
			defer wg.Done()
			s.SubmitText("out")
		}()
	}
	wg.Wait()

	if got := s.Len(); got != 100 {
		t.Fatalf("transcript length = %d, want 100", got)
	}
}
