package requestgraph

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunRequestMemoizesResult(t *testing.T) {
	g := New()
	var calls int32

	req := Request{
		ID: "asset_request:a.js",
		Run: func(api *API) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return "result", nil
		},
	}

	for i := 0; i < 3; i++ {
		v, err := g.RunRequest(req)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if v != "result" {
			t.Fatalf("run %d: unexpected result %v", i, v)
		}
	}
	if calls != 1 {
		t.Fatalf("expected exactly one execution, got %d", calls)
	}
}

func TestRunRequestDeduplicatesConcurrentCalls(t *testing.T) {
	g := New()
	var calls int32
	start := make(chan struct{})

	req := Request{
		ID: "asset_request:a.js",
		Run: func(api *API) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			<-start
			return "result", nil
		},
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.RunRequest(req)
			if err != nil {
				t.Errorf("concurrent run %d: %v", i, err)
			}
			results[i] = v
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(start)
	wg.Wait()

	if calls != 1 {
		t.Fatalf("expected a single execution shared across concurrent callers, got %d", calls)
	}
	for i, v := range results {
		if v != "result" {
			t.Fatalf("caller %d got unexpected result %v", i, v)
		}
	}
}

func TestRunRequestDetectsCycle(t *testing.T) {
	g := New()

	var reqB Request
	reqA := Request{
		ID: "a",
		Run: func(api *API) (interface{}, error) {
			return api.RunRequest(reqB)
		},
	}
	reqB = Request{
		ID: "b",
		Run: func(api *API) (interface{}, error) {
			return api.RunRequest(reqA)
		},
	}

	_, err := g.RunRequest(reqA)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if _, ok := err.(*CycleError); !ok {
		t.Fatalf("expected *CycleError, got %T: %v", err, err)
	}
}

func TestInvalidateOnFileUpdateCausesRerun(t *testing.T) {
	g := New()
	var calls int32

	req := Request{
		ID: "asset_request:a.js",
		Run: func(api *API) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			api.InvalidateOnFileUpdate("a.js")
			return "result", nil
		},
	}

	if _, err := g.RunRequest(req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := g.RunRequest(req); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected memoized second run, got %d calls", calls)
	}

	g.Invalidate([]FileEvent{{Kind: EdgeFileUpdate, Path: "a.js"}})

	if _, err := g.RunRequest(req); err != nil {
		t.Fatalf("third run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected re-execution after invalidation, got %d calls", calls)
	}
}

func TestInvalidateCascadesToAncestors(t *testing.T) {
	g := New()
	var parentCalls, childCalls int32

	child := Request{
		ID: "config_request:a.js",
		Run: func(api *API) (interface{}, error) {
			atomic.AddInt32(&childCalls, 1)
			api.InvalidateOnFileUpdate(".babelrc")
			return "config", nil
		},
	}
	parent := Request{
		ID: "asset_request:a.js",
		Run: func(api *API) (interface{}, error) {
			atomic.AddInt32(&parentCalls, 1)
			if _, err := api.RunRequest(child); err != nil {
				return nil, err
			}
			return "asset", nil
		},
	}

	if _, err := g.RunRequest(parent); err != nil {
		t.Fatalf("first run: %v", err)
	}

	g.Invalidate([]FileEvent{{Kind: EdgeFileUpdate, Path: ".babelrc"}})

	if _, err := g.RunRequest(parent); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if parentCalls != 2 || childCalls != 2 {
		t.Fatalf("expected parent re-run after child invalidation, got parent=%d child=%d", parentCalls, childCalls)
	}
}

func TestRunErrorLeavesNodeUnresolved(t *testing.T) {
	g := New()
	var calls int32

	req := Request{
		ID: "asset_request:broken.js",
		Run: func(api *API) (interface{}, error) {
			n := atomic.AddInt32(&calls, 1)
			if n == 1 {
				return nil, errFailed
			}
			return "result", nil
		},
	}

	if _, err := g.RunRequest(req); err == nil {
		t.Fatal("expected first run to fail")
	}
	v, err := g.RunRequest(req)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if v != "result" {
		t.Fatalf("unexpected result %v", v)
	}
	if calls != 2 {
		t.Fatalf("expected retry after failure, got %d calls", calls)
	}
}

var errFailed = fmtError("simulated failure")

type fmtError string

func (e fmtError) Error() string { return string(e) }
