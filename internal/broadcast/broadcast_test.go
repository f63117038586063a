package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) []byte {
	t.Helper()

	select {
	case payload, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed")
		}
		return payload
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx := context.Background()

	first := hub.Subscribe("R1")
	second := hub.Subscribe("R1")
	other := hub.Subscribe("R2")

	hub.Publish(ctx, "R1", []byte("hello"))

	if got := recv(t, first); string(got) != "hello" {
		t.Errorf("first got %q", got)
	}
	if got := recv(t, second); string(got) != "hello" {
		t.Errorf("second got %q", got)
	}

	select {
	case payload := <-other.C:
		t.Errorf("R2 subscriber received %q", payload)
	default:
	}
}

func TestPublishOrderPreserved(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx := context.Background()

	sub := hub.Subscribe("R1")

	for i := 0; i < 10; i++ {
		hub.Publish(ctx, "R1", []byte(fmt.Sprintf("m%d", i)))
	}

	for i := 0; i < 10; i++ {
		if got, want := string(recv(t, sub)), fmt.Sprintf("m%d", i); got != want {
			t.Fatalf("message %d = %q, want %q", i, got, want)
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx := context.Background()

	sub := hub.Subscribe("R1")
	hub.Unsubscribe("R1", sub.ID)

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected a closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}

	// Publishing to an empty group is a no-op.
	hub.Publish(ctx, "R1", []byte("gone"))

	// Unsubscribing twice is a no-op.
	hub.Unsubscribe("R1", sub.ID)
}

func TestPublishDropsWhenSubscriberLags(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx := context.Background()

	sub := hub.Subscribe("R1")

	// Fill the buffer and one more; Publish must not block.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+5; i++ {
			hub.Publish(ctx, "R1", []byte("m"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a lagging subscriber")
	}

	drained := 0
	for {
		select {
		case <-sub.C:
			drained++
			continue
		default:
		}
		break
	}

	if drained != subscriberBuffer {
		t.Errorf("drained %d messages, want %d", drained, subscriberBuffer)
	}
}

func TestPublishConcurrentWithUnsubscribe(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx := context.Background()

	// Churn subscribers while publishing; must not panic on closed channels.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sub := hub.Subscribe("R1")
			hub.Unsubscribe("R1", sub.ID)
		}
	}()

	for i := 0; i < 200; i++ {
		hub.Publish(ctx, "R1", []byte("m"))
	}

	<-done
}
