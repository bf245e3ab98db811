package feed

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"classlink/pkg/interfaces"
)

func recvEvent(t *testing.T, events <-chan interfaces.Event) interfaces.Event {
	t.Helper()
	select {
	case e, ok := <-events:
		if !ok {
			t.Fatal("event channel closed unexpectedly")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return interfaces.Event{}
}

func TestPublishReachesSubscriber(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	sub := f.Subscribe("ms-chen")
	defer sub.Cancel()

	f.Publish("ms-chen")
	event := recvEvent(t, sub.Events())
	if event.TeacherID != "ms-chen" {
		t.Errorf("event teacher = %q, want ms-chen", event.TeacherID)
	}
	if event.Seq == 0 {
		t.Error("event sequence not assigned")
	}
}

func TestPublishFiltersByTeacher(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	chenSub := f.Subscribe("ms-chen")
	defer chenSub.Cancel()
	patelSub := f.Subscribe("mr-patel")
	defer patelSub.Cancel()

	f.Publish("ms-chen")
	recvEvent(t, chenSub.Events())

	select {
	case e := <-patelSub.Events():
		t.Errorf("mr-patel subscriber received %+v for ms-chen's row", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSequenceIncreases(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	sub := f.Subscribe("ms-chen")
	defer sub.Cancel()

	f.Publish("ms-chen")
	f.Publish("ms-chen")

	first := recvEvent(t, sub.Events())
	second := recvEvent(t, sub.Events())
	if second.Seq <= first.Seq {
		t.Errorf("sequence did not increase: %d then %d", first.Seq, second.Seq)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	sub := f.Subscribe("ms-chen")
	sub.Cancel()
	sub.Cancel() // idempotent

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after Cancel")
	}

	// Publishing after the only subscriber cancelled must not panic.
	f.Publish("ms-chen")
}

func TestFullBufferDropsNotBlocks(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	sub := f.Subscribe("ms-chen")
	defer sub.Cancel()

	// Overfill the buffer; Publish must return promptly every time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*3; i++ {
			f.Publish("ms-chen")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}

func TestCloseCancelsAll(t *testing.T) {
	f := NewFeed(zap.NewNop())

	sub := f.Subscribe("ms-chen")
	f.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after feed Close")
	}

	// Publish and a second Close after shutdown are no-ops.
	f.Publish("ms-chen")
	f.Close()

	late := f.Subscribe("ms-chen")
	if _, ok := <-late.Events(); ok {
		t.Error("subscription on closed feed yielded an open channel")
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		sub := f.Subscribe("ms-chen")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range sub.Events() {
			}
		}()
		go func() {
			defer wg.Done()
			sub.Cancel()
		}()
	}
	for i := 0; i < 100; i++ {
		f.Publish("ms-chen")
	}
	wg.Wait()
}

func TestStats(t *testing.T) {
	f := NewFeed(zap.NewNop())
	defer f.Close()

	f.Subscribe("ms-chen")
	f.Subscribe("ms-chen")
	f.Subscribe("mr-patel")

	stats := f.Stats()
	if stats["subscribed_teachers"] != 2 {
		t.Errorf("subscribed_teachers = %d, want 2", stats["subscribed_teachers"])
	}
	if stats["total_subscriptions"] != 3 {
		t.Errorf("total_subscriptions = %d, want 3", stats["total_subscriptions"])
	}
}
