package async_test

import (
	"errors"
	"testing"

	"github.com/corvid-labs/reactorhttp/internal/async"
)

// Property 2: for A | then(f) | then(g), the final value equals g(f(v)).
func TestThenComposition(t *testing.T) {
	op := async.Then(async.Then(async.Just(3), func(v int) int {
		return v + 1
	}), func(v int) int {
		return v * 2
	})
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected value completion, got err=%v ok=%v", err, ok)
	}
	if v != 8 {
		t.Fatalf("want 8, got %d", v)
	}
}

// Property 3: LetError(fail, _ => just(x)) always completes value(x).
func TestLetErrorFallback(t *testing.T) {
	failing := async.JustError[int](errors.New("boom"))
	op := async.LetError(failing, func(error) async.Operation[int] {
		return async.Just(42)
	})
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected recovered value, got err=%v ok=%v", err, ok)
	}
	if v != 42 {
		t.Fatalf("want 42, got %d", v)
	}
}

// Property 4: WhenAll2(just(a), just(b)) completes value(a, b).
func TestWhenAll2Success(t *testing.T) {
	op := async.WhenAll2(async.Just(1), async.Just("x"))
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected value completion, got err=%v ok=%v", err, ok)
	}
	if v.First != 1 || v.Second != "x" {
		t.Fatalf("unexpected pair: %+v", v)
	}
}

// Scenario S6: WhenAll2(just(1), fail(e)) completes with error e, never value.
func TestWhenAll2Error(t *testing.T) {
	wantErr := errors.New("sibling failed")
	op := async.WhenAll2(async.Just(1), async.JustError[int](wantErr))
	_, err, ok := async.SyncWait(op)
	if ok {
		t.Fatalf("expected error completion, got value completion")
	}
	if !errors.Is(err, wantErr) && err.Error() != wantErr.Error() {
		t.Fatalf("want error %v, got %v", wantErr, err)
	}
}

func TestWhenAllSliceSuccess(t *testing.T) {
	ops := []async.Operation[int]{async.Just(1), async.Just(2), async.Just(3)}
	op := async.WhenAllSlice(ops)
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected value completion, got err=%v ok=%v", err, ok)
	}
	sum := 0
	for _, x := range v {
		sum += x
	}
	if sum != 6 {
		t.Fatalf("want sum 6, got %d", sum)
	}
}

func TestLetStoppedFallback(t *testing.T) {
	op := async.LetStopped(async.JustStopped[int](), func() async.Operation[int] {
		return async.Just(-1)
	})
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected recovered value, got err=%v ok=%v", err, ok)
	}
	if v != -1 {
		t.Fatalf("want -1, got %d", v)
	}
}

func TestLetValueChaining(t *testing.T) {
	op := async.LetValue(async.Just(5), func(v int) async.Operation[string] {
		if v > 0 {
			return async.Just("positive")
		}
		return async.Just("non-positive")
	})
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected value completion, got err=%v ok=%v", err, ok)
	}
	if v != "positive" {
		t.Fatalf("want positive, got %q", v)
	}
}

// Property 1: exactly one completion fires, on exactly one channel.
func TestExactlyOneCompletion(t *testing.T) {
	var valueCount, errorCount, stoppedCount int
	run := func(op async.Operation[int]) {
		op.Start(async.Receiver[int]{
			OnValue:   func(int) { valueCount++ },
			OnError:   func(error) { errorCount++ },
			OnStopped: func() { stoppedCount++ },
		})
	}
	run(async.Just(1))
	run(async.JustError[int](errors.New("x")))
	run(async.JustStopped[int]())
	if valueCount != 1 || errorCount != 1 || stoppedCount != 1 {
		t.Fatalf("want 1/1/1, got %d/%d/%d", valueCount, errorCount, stoppedCount)
	}
}

// A panicking continuation becomes an error completion of that stage
// (spec.md §7), never an unhandled panic escaping Start.
func TestPanicBecomesError(t *testing.T) {
	op := async.Then(async.Just(1), func(int) int {
		panic("boom")
	})
	_, err, ok := async.SyncWait(op)
	if ok {
		t.Fatalf("expected error completion from panic, got value completion")
	}
	if err == nil {
		t.Fatalf("expected non-nil error")
	}
}

type inlineScheduler struct{}

func (inlineScheduler) Schedule(fn func()) { fn() }

func TestTransferAndOn(t *testing.T) {
	sched := inlineScheduler{}
	op := async.Transfer(async.Just(7), sched)
	v, err, ok := async.SyncWait(op)
	if !ok || err != nil {
		t.Fatalf("expected value completion, got err=%v ok=%v", err, ok)
	}
	if v != 7 {
		t.Fatalf("want 7, got %d", v)
	}

	onOp := async.On[int](sched, async.Just(9))
	v2, err2, ok2 := async.SyncWait(onOp)
	if !ok2 || err2 != nil || v2 != 9 {
		t.Fatalf("On() mismatch: v=%d err=%v ok=%v", v2, err2, ok2)
	}
}

func TestStartDetachedDoesNotBlock(t *testing.T) {
	done := make(chan struct{})
	async.StartDetached(async.Then(async.Just(1), func(v int) int {
		close(done)
		return v
	}))
	<-done
}
