//go:build linux

package reactor_test

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvid-labs/reactorhttp/internal/reactor"
)

type inlineOp struct {
	ran      atomic.Bool
	stopped  atomic.Bool
	fn       func()
}

func (o *inlineOp) TryRun() bool {
	o.ran.Store(true)
	if o.fn != nil {
		o.fn()
	}
	return true
}
func (o *inlineOp) SetStopped() { o.stopped.Store(true) }

// neverReadyOp never completes via TryRun; used to populate the poll
// set so Stop()'s drain has something to cancel (spec.md §8 property 5).
type neverReadyOp struct {
	stopped atomic.Bool
}

func (o *neverReadyOp) TryRun() bool  { return false }
func (o *neverReadyOp) SetStopped()   { o.stopped.Store(true) }

func TestSubmitInlineRunsOnce(t *testing.T) {
	r, err := reactor.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	op := &inlineOp{}
	r.SubmitInline(op)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run()
	}()

	for i := 0; i < 1000 && !op.ran.Load(); i++ {
		time.Sleep(time.Millisecond)
	}
	if !op.ran.Load() {
		t.Fatalf("inline op never ran")
	}
	r.Stop()
	wg.Wait()
}

// Property 5: a Stop() while K operations are pending yields exactly K
// stopped completions and zero value/error completions for those ops.
func TestStopDrainsKPendingOps(t *testing.T) {
	r, err := reactor.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	const k = 5
	readEnds := make([]*os.File, 0, k)
	ops := make([]*neverReadyOp, 0, k)
	for i := 0; i < k; i++ {
		rf, wf, err := os.Pipe()
		if err != nil {
			t.Fatalf("Pipe: %v", err)
		}
		defer rf.Close()
		defer wf.Close()
		readEnds = append(readEnds, rf)

		op := &neverReadyOp{}
		ops = append(ops, op)
		r.SubmitIO(int(rf.Fd()), reactor.InterestRead, op)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run()
	}()

	// Give the reactor a chance to register all k ops before stopping.
	time.Sleep(20 * time.Millisecond)
	r.Stop()
	wg.Wait()

	for i, op := range ops {
		if !op.stopped.Load() {
			t.Fatalf("op %d: expected stopped completion, got none", i)
		}
	}
}

func TestRunOneFalseWhenIdle(t *testing.T) {
	r, err := reactor.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer r.Close()

	if r.RunOne() {
		t.Fatalf("expected RunOne to report no progress on an empty reactor")
	}
}
