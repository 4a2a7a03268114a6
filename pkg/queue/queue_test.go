package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDequeueOrder(t *testing.T) {
	q := New[string]()
	q.Enqueue("low", 5)
	q.Enqueue("urgent", 1)
	q.Enqueue("mid-a", 3)
	q.Enqueue("mid-b", 3)

	want := []string{"urgent", "mid-a", "mid-b", "low"}
	for _, w := range want {
		got, ok := q.Dequeue()
		if !ok || got != w {
			t.Fatalf("got %q (%v), want %q", got, ok, w)
		}
		q.Release()
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected empty queue")
	}
	if !q.IsEmpty() {
		t.Fatalf("IsEmpty should be true")
	}
}

func TestPeek(t *testing.T) {
	q := New[int]()
	if _, _, ok := q.Peek(); ok {
		t.Fatalf("peek on empty queue")
	}
	q.Enqueue(10, 2)
	q.Enqueue(20, 1)
	v, p, ok := q.Peek()
	if !ok || v != 20 || p != 1 {
		t.Fatalf("unexpected peek %d %d %v", v, p, ok)
	}
	if q.Len() != 2 {
		t.Fatalf("peek must not remove")
	}
}

func TestPreemption(t *testing.T) {
	q := New[string]()
	var preempted []string
	q.OnPreempt = func(v string) { preempted = append(preempted, v) }

	q.Enqueue("background", 5)
	if v, _ := q.Dequeue(); v != "background" {
		t.Fatalf("unexpected focus %q", v)
	}
	q.Enqueue("later", 9)
	if len(preempted) != 0 {
		t.Fatalf("less urgent item must not preempt")
	}
	q.Enqueue("interrupt", 1)
	if len(preempted) != 1 || preempted[0] != "background" {
		t.Fatalf("expected background to be preempted, got %v", preempted)
	}
	if _, ok := q.Focused(); ok {
		t.Fatalf("focus should be cleared after preemption")
	}
	for _, w := range []string{"interrupt", "background", "later"} {
		if v, _ := q.Dequeue(); v != w {
			t.Fatalf("got %q, want %q", v, w)
		}
	}
}

func TestNextBlocksUntilEnqueue(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		v, err := q.Next(ctx)
		if err != nil {
			done <- -1
			return
		}
		done <- v
	}()
	time.Sleep(20 * time.Millisecond)
	q.Enqueue(7, 0)
	if v := <-done; v != 7 {
		t.Fatalf("unexpected value %d", v)
	}
}

func TestNextContextAndClose(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}

	q.Enqueue(1, 0)
	q.Close()
	if v, err := q.Next(context.Background()); err != nil || v != 1 {
		t.Fatalf("closed queue should drain first: %d %v", v, err)
	}
	if _, err := q.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
