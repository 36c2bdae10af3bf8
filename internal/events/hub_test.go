package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		require.True(t, ok, "channel closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestPublish_FiltersByUser(t *testing.T) {
	h := NewHub(4)
	defer h.Close()

	alice, cancelA := h.Subscribe(ForUser("alice"))
	defer cancelA()
	all, cancelAll := h.Subscribe(nil)
	defer cancelAll()

	h.Publish(Event{Kind: InterestCreated, UserUIDs: []string{"bob"}, InterestID: "i1"})
	h.Publish(Event{Kind: InterestUpdated, UserUIDs: []string{"alice", "bob"}, InterestID: "i1"})

	got := recv(t, alice)
	assert.Equal(t, InterestUpdated, got.Kind)
	assert.False(t, got.At.IsZero())

	assert.Equal(t, InterestCreated, recv(t, all).Kind)
	assert.Equal(t, InterestUpdated, recv(t, all).Kind)

	select {
	case e := <-alice:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestPublish_NeverBlocks(t *testing.T) {
	h := NewHub(1)
	defer h.Close()

	ch, cancel := h.Subscribe(nil)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{Kind: ProjectCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, ProjectCreated, recv(t, ch).Kind)
}

func TestCancel_Idempotent(t *testing.T) {
	h := NewHub(0)
	defer h.Close()

	ch, cancel := h.Subscribe(nil)
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())

	_, ok := <-ch
	assert.False(t, ok, "channel closed after cancel")
}

func TestClose_ClosesSubscribers(t *testing.T) {
	h := NewHub(0)
	ch1, cancel1 := h.Subscribe(nil)
	ch2, _ := h.Subscribe(ForUser("x"))

	var wg sync.WaitGroup
	for _, ch := range []<-chan Event{ch1, ch2} {
		wg.Add(1)
		go func(ch <-chan Event) {
			defer wg.Done()
			for range ch {
			}
		}(ch)
	}

	h.Close()
	wg.Wait()
	cancel1() // safe after Close

	h.Publish(Event{Kind: ProjectCreated})

	late, _ := h.Subscribe(nil)
	_, ok := <-late
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
}

func TestEvent_Concerns(t *testing.T) {
	e := Event{UserUIDs: []string{"a", "b"}}
	assert.True(t, e.Concerns("b"))
	assert.False(t, e.Concerns("c"))
}
