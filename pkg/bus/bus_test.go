package bus

import (
	"context"
	"testing"
	"time"

	"wisochat/pkg/protocol"
)

func TestPublishFansOut(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	a, unsubA := mb.Subscribe(ctx, 1)
	defer unsubA()
	b, unsubB := mb.Subscribe(ctx, 1)
	defer unsubB()

	if ok := mb.Publish(ctx, Message{From: "abc", Body: "hola"}); !ok {
		t.Fatal("expected publish to succeed")
	}

	for name, ch := range map[string]<-chan Message{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Body != "hola" || got.From != "abc" {
				t.Fatalf("subscriber %s got %+v", name, got)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s got zero timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive message", name)
		}
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	ch, unsubscribe := mb.Subscribe(ctx, 1)
	defer unsubscribe()

	if ok := mb.Publish(ctx, Message{Body: "first"}); !ok {
		t.Fatal("expected first publish to succeed")
	}

	start := time.Now()
	if ok := mb.Publish(ctx, Message{Body: "second"}); !ok {
		t.Fatal("expected second publish to succeed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish blocked on slow subscriber")
	}

	select {
	case got := <-ch:
		if got.Body != "first" {
			t.Fatalf("body = %q, want first", got.Body)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected buffered message")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ch, unsubscribe := mb.Subscribe(context.Background(), 1)
	unsubscribe()
	unsubscribe()

	if mb.Subscribers() != 0 {
		t.Fatalf("Subscribers = %d, want 0", mb.Subscribers())
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestContextCancellationUnsubscribes(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := mb.Subscribe(ctx, 1)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription not released on cancel")
	}

	if ok := mb.Publish(ctx, Message{Body: "x"}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
}

func TestCloseStopsBus(t *testing.T) {
	mb := NewMessageBus()
	ch, _ := mb.Subscribe(context.Background(), 1)
	mb.Close()
	mb.Close()

	if ok := mb.Publish(context.Background(), Message{Body: "x"}); ok {
		t.Fatal("expected publish to fail after close")
	}

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("subscription not closed by Close")
	}

	late, unsubscribe := mb.Subscribe(context.Background(), 1)
	unsubscribe()
	if _, ok := <-late; ok {
		t.Fatal("expected subscribe after close to return a closed channel")
	}
}

func TestMessageFrame(t *testing.T) {
	msg := Message{From: "abc", Kind: protocol.KindJoin}
	if got := msg.Frame(); got != (protocol.Frame{Kind: protocol.KindJoin, From: "abc"}) {
		t.Fatalf("Frame = %+v", got)
	}
}
