//go:build linux

package mq

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testPoll = 10 * time.Millisecond

func testName() string {
	return "namedq-test-" + uuid.NewString()[:8]
}

// newQueue opens a fresh queue and removes it when the test ends.
func newQueue(t *testing.T, capacity, size int) *NamedQueue {
	t.Helper()

	q, err := Open(testName(), capacity, size, WithPollInterval(testPoll), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = q.Close()
		_ = Remove(q.Name())
	})
	return q
}

// attach opens a second handle on q's queue.
func attach(t *testing.T, q *NamedQueue) *NamedQueue {
	t.Helper()

	h, err := Open(q.Name(), 1, 1, WithPollInterval(testPoll))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func mustReceive(t *testing.T, q *NamedQueue) []byte {
	t.Helper()

	payload, ok, err := q.TryReceive()
	if err != nil {
		t.Fatalf("TryReceive error: %v", err)
	}
	if !ok {
		t.Fatal("TryReceive found no message")
	}
	return payload
}

func TestNamedQueue_SameNameSharesQueue(t *testing.T) {
	a := newQueue(t, 4, 64)
	b := attach(t, a)

	if err := a.Send([]byte("hello"), 0); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	got, err := b.Receive()
	if err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("Receive = %q, want hello", got)
	}
}

func TestNamedQueue_LeadingSlashIsSameName(t *testing.T) {
	a := newQueue(t, 4, 64)

	b, err := Open("/"+a.Name(), 4, 64)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer b.Close()

	if b.Name() != a.Name() {
		t.Errorf("Name() = %q, want %q", b.Name(), a.Name())
	}
	_ = a.Send([]byte("x"), 0)
	if got := mustReceive(t, b); string(got) != "x" {
		t.Errorf("received %q, want x", got)
	}
}

func TestNamedQueue_AttachAdoptsExistingLimits(t *testing.T) {
	a := newQueue(t, 5, 128)

	b, err := Open(a.Name(), 10, 4096)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer b.Close()

	if b.Capacity() != 5 {
		t.Errorf("Capacity() = %d, want 5", b.Capacity())
	}
	if b.MaxMessageSize() != 128 {
		t.Errorf("MaxMessageSize() = %d, want 128", b.MaxMessageSize())
	}

	// The attached handle validates against the real limit, not the requested one
	err = b.Send(make([]byte, 129), 0)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Send error = %v, want %v", err, ErrTooLarge)
	}
}

func TestNamedQueue_MessageSizeBoundary(t *testing.T) {
	q := newQueue(t, 4, 32)

	exact := bytes.Repeat([]byte("a"), 32)
	if err := q.Send(exact, 0); err != nil {
		t.Fatalf("Send of exactly max size error: %v", err)
	}

	err := q.Send(make([]byte, 33), 0)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Send of max+1 error = %v, want %v", err, ErrTooLarge)
	}

	if got := mustReceive(t, q); !bytes.Equal(got, exact) {
		t.Errorf("received %q, want %q", got, exact)
	}
	// The oversized message was refused, not queued
	if _, ok, _ := q.TryReceive(); ok {
		t.Error("oversized message should not be delivered")
	}
}

func TestNamedQueue_EmptyPayload(t *testing.T) {
	q := newQueue(t, 4, 32)

	if err := q.Send(nil, 1); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	msg, err := q.TryReceiveMessage()
	if err != nil || msg == nil {
		t.Fatalf("TryReceiveMessage = %v, %v; want a message", msg, err)
	}
	if len(msg.Payload) != 0 || msg.Priority != 1 {
		t.Errorf("message = %q/%d, want empty/1", msg.Payload, msg.Priority)
	}
}

func TestNamedQueue_PriorityOrder(t *testing.T) {
	q := newQueue(t, 4, 32)

	for _, p := range []uint{1, 5, 3} {
		if err := q.Send([]byte(fmt.Sprint(p)), p); err != nil {
			t.Fatalf("Send error: %v", err)
		}
	}

	for _, want := range []uint{5, 3, 1} {
		msg, err := q.ReceiveContext(context.Background())
		if err != nil {
			t.Fatalf("ReceiveContext error: %v", err)
		}
		if msg.Priority != want || string(msg.Payload) != fmt.Sprint(want) {
			t.Errorf("received %q/%d, want priority %d", msg.Payload, msg.Priority, want)
		}
	}
}

func TestNamedQueue_FIFOWithinPriority(t *testing.T) {
	q := newQueue(t, 4, 32)

	_ = q.Send([]byte("A"), 7)
	_ = q.Send([]byte("B"), 7)

	if got := mustReceive(t, q); string(got) != "A" {
		t.Errorf("first = %q, want A", got)
	}
	if got := mustReceive(t, q); string(got) != "B" {
		t.Errorf("second = %q, want B", got)
	}
}

func TestNamedQueue_InvalidPriority(t *testing.T) {
	q := newQueue(t, 4, 32)

	if err := q.Send([]byte("x"), MaxPriority); err != nil {
		t.Errorf("Send at MaxPriority error: %v", err)
	}
	if err := q.Send([]byte("x"), MaxPriority+1); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("Send error = %v, want %v", err, ErrInvalidPriority)
	}
}

func TestNamedQueue_TryReceiveNeverBlocks(t *testing.T) {
	q := newQueue(t, 4, 32)

	start := time.Now()
	payload, ok, err := q.TryReceive()
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("TryReceive error: %v", err)
	}
	if ok || payload != nil {
		t.Errorf("TryReceive = %q, %v; want nothing", payload, ok)
	}
	if elapsed > 50*time.Millisecond {
		t.Errorf("TryReceive took %v on an empty queue", elapsed)
	}

	msg, err := q.TryReceiveMessage()
	if msg != nil || err != nil {
		t.Errorf("TryReceiveMessage = %v, %v; want nil, nil", msg, err)
	}
}

func TestNamedQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := newQueue(t, 4, 32)
	sender := attach(t, q)

	result := make(chan []byte, 1)
	go func() {
		payload, err := q.Receive()
		if err != nil {
			t.Errorf("Receive error: %v", err)
		}
		result <- payload
	}()

	select {
	case <-result:
		t.Fatal("Receive returned before anything was sent")
	case <-time.After(5 * testPoll):
	}

	if err := sender.Send([]byte("wake"), 0); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	select {
	case got := <-result:
		if string(got) != "wake" {
			t.Errorf("Receive = %q, want wake", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive did not return after Send")
	}
}

func TestNamedQueue_ReceiveWakesOnDestroy(t *testing.T) {
	q := newQueue(t, 4, 32)
	other := attach(t, q)

	result := make(chan error, 1)
	go func() {
		_, err := q.Receive()
		result <- err
	}()
	time.Sleep(3 * testPoll)

	if err := other.Destroy(); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrQueueRemoved) {
			t.Errorf("Receive error = %v, want %v", err, ErrQueueRemoved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Receive did not wake after Destroy")
	}
}

func TestNamedQueue_SendBlocksWhileFullAndWakesOnDestroy(t *testing.T) {
	q := newQueue(t, 1, 32)
	other := attach(t, q)

	if err := q.Send([]byte("fill"), 0); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- q.Send([]byte("blocked"), 0)
	}()

	select {
	case err := <-result:
		t.Fatalf("Send on a full queue returned early: %v", err)
	case <-time.After(5 * testPoll):
	}

	if err := other.Destroy(); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrQueueRemoved) {
			t.Errorf("Send error = %v, want %v", err, ErrQueueRemoved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Send did not wake after Destroy")
	}
}

func TestNamedQueue_SendUnblocksWhenSpaceFrees(t *testing.T) {
	q := newQueue(t, 1, 32)
	consumer := attach(t, q)

	_ = q.Send([]byte("first"), 0)

	result := make(chan error, 1)
	go func() {
		result <- q.Send([]byte("second"), 0)
	}()
	time.Sleep(3 * testPoll)

	if got := mustReceive(t, consumer); string(got) != "first" {
		t.Errorf("received %q, want first", got)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Errorf("Send error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not unblock after space freed")
	}
	if got := mustReceive(t, consumer); string(got) != "second" {
		t.Errorf("received %q, want second", got)
	}
}

func TestNamedQueue_ReceiveContextCanceled(t *testing.T) {
	q := newQueue(t, 4, 32)

	ctx, cancel := context.WithTimeout(context.Background(), 3*testPoll)
	defer cancel()

	_, err := q.ReceiveContext(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("ReceiveContext error = %v, want %v", err, context.DeadlineExceeded)
	}
}

func TestNamedQueue_DestroyIsIdempotentInIntent(t *testing.T) {
	q := newQueue(t, 4, 32)

	if err := q.Destroy(); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}
	if err := q.Destroy(); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Destroy error = %v, want %v", err, ErrNotFound)
	}
	if err := Remove(q.Name()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove error = %v, want %v", err, ErrNotFound)
	}

	if _, _, err := q.TryReceive(); !errors.Is(err, ErrQueueRemoved) {
		t.Errorf("TryReceive after Destroy error = %v, want %v", err, ErrQueueRemoved)
	}
	if err := q.Send([]byte("x"), 0); !errors.Is(err, ErrQueueRemoved) {
		t.Errorf("Send after Destroy error = %v, want %v", err, ErrQueueRemoved)
	}
}

func TestNamedQueue_RecreateAfterDestroyIsEmpty(t *testing.T) {
	old := newQueue(t, 4, 32)
	_ = old.Send([]byte("stale"), 0)

	if err := old.Destroy(); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}

	fresh, err := Open(old.Name(), 4, 32)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer fresh.Close()

	if _, ok, err := fresh.TryReceive(); ok || err != nil {
		t.Errorf("fresh queue TryReceive = %v, %v; want empty", ok, err)
	}

	// The old handle points at the removed object, not at the new queue
	if _, _, err := old.TryReceive(); !errors.Is(err, ErrQueueRemoved) {
		t.Errorf("old handle error = %v, want %v", err, ErrQueueRemoved)
	}
	// and destroying through it must not remove the new queue
	if err := old.Destroy(); !errors.Is(err, ErrNotFound) {
		t.Errorf("old handle Destroy error = %v, want %v", err, ErrNotFound)
	}
	if err := fresh.Send([]byte("new"), 0); err != nil {
		t.Errorf("Send on fresh queue error: %v", err)
	}
}

func TestNamedQueue_LinkCountTracksRemoval(t *testing.T) {
	q := newQueue(t, 4, 32)

	if unlinked, err := sysUnlinked(q.fd); err != nil || unlinked {
		t.Fatalf("sysUnlinked on live queue = %v, %v; want false", unlinked, err)
	}
	if err := Remove(q.Name()); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if unlinked, err := sysUnlinked(q.fd); err != nil || !unlinked {
		t.Errorf("sysUnlinked after Remove = %v, %v; want true", unlinked, err)
	}

	// Recreating the name must not revive the removed object
	fresh, err := Open(q.Name(), 4, 32)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer fresh.Close()
	if err := q.checkAlive(); !errors.Is(err, ErrQueueRemoved) {
		t.Errorf("checkAlive on stale handle = %v, want %v", err, ErrQueueRemoved)
	}
	if err := fresh.checkAlive(); err != nil {
		t.Errorf("checkAlive on fresh handle = %v, want nil", err)
	}
}

func TestNamedQueue_LivenessFollowsDescriptor(t *testing.T) {
	owner := newQueue(t, 1, 32)
	if err := owner.Send([]byte("fill"), 0); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	// Stands in for a handle that cannot reopen its own name, e.g. write-only
	h := attach(t, owner)
	h.name = "namedq-unresolvable-" + uuid.NewString()[:8]

	errCh := make(chan error, 1)
	go func() { errCh <- h.Send([]byte("blocked"), 0) }()

	select {
	case err := <-errCh:
		t.Fatalf("Send returned %v before Destroy, want it blocked", err)
	case <-time.After(5 * testPoll):
	}
	if err := owner.Destroy(); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrQueueRemoved) {
			t.Errorf("Send error = %v, want %v", err, ErrQueueRemoved)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Send did not wake on Destroy")
	}
}

func TestNamedQueue_CloseDoesNotRemoveQueue(t *testing.T) {
	q := newQueue(t, 4, 32)
	_ = q.Send([]byte("kept"), 0)

	h := attach(t, q)
	if err := h.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
	if _, _, err := h.TryReceive(); !errors.Is(err, ErrClosed) {
		t.Errorf("TryReceive on closed handle error = %v, want %v", err, ErrClosed)
	}
	if _, err := h.Stat(); !errors.Is(err, ErrClosed) {
		t.Errorf("Stat on closed handle error = %v, want %v", err, ErrClosed)
	}

	if got := mustReceive(t, q); string(got) != "kept" {
		t.Errorf("received %q, want kept", got)
	}
}

func TestNamedQueue_Stat(t *testing.T) {
	q := newQueue(t, 4, 32)
	_ = q.Send([]byte("a"), 0)
	_ = q.Send([]byte("b"), 0)

	attr, err := q.Stat()
	if err != nil {
		t.Fatalf("Stat error: %v", err)
	}
	want := Attributes{Capacity: 4, MaxMessageSize: 32, Current: 2}
	if attr != want {
		t.Errorf("Stat = %+v, want %+v", attr, want)
	}
}

func TestNamedQueue_ConcurrentSendersNoLossNoDuplicates(t *testing.T) {
	const senders = 8
	q := newQueue(t, senders, 64)

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := Open(q.Name(), senders, 64, WithPollInterval(testPoll))
			if err != nil {
				t.Errorf("Open error: %v", err)
				return
			}
			defer h.Close()
			if err := h.Send([]byte(fmt.Sprintf("sender-%d", i)), uint(i%3)); err != nil {
				t.Errorf("Send error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, senders)
	for i := 0; i < senders; i++ {
		payload, err := q.Receive()
		if err != nil {
			t.Fatalf("Receive error: %v", err)
		}
		if seen[string(payload)] {
			t.Errorf("duplicate message %q", payload)
		}
		seen[string(payload)] = true
	}
	if len(seen) != senders {
		t.Errorf("received %d distinct messages, want %d", len(seen), senders)
	}
	if _, ok, _ := q.TryReceive(); ok {
		t.Error("queue should be empty")
	}
}

func TestOpen_ResourceErrors(t *testing.T) {
	tests := []struct {
		name     string
		queue    string
		capacity int
		size     int
		wantErr  error
	}{
		{name: "empty name", queue: "", capacity: 1, size: 1, wantErr: ErrInvalidName},
		{name: "only slash", queue: "/", capacity: 1, size: 1, wantErr: ErrInvalidName},
		{name: "nested path", queue: "a/b", capacity: 1, size: 1, wantErr: ErrInvalidName},
		{name: "zero capacity", queue: testName(), capacity: 0, size: 1, wantErr: ErrInvalidLimits},
		{name: "zero size", queue: testName(), capacity: 1, size: 0, wantErr: ErrInvalidLimits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(tt.queue, tt.capacity, tt.size)
			var re *ResourceError
			if !errors.As(err, &re) {
				t.Fatalf("error = %v, want *ResourceError", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOpen_LimitsAboveSystemMaximum(t *testing.T) {
	// fs.mqueue.msgsize_max caps at 16MiB even for privileged callers
	_, err := Open(testName(), 1, 64<<20)
	var re *ResourceError
	if !errors.As(err, &re) {
		t.Errorf("error = %v, want *ResourceError", err)
	}
}
