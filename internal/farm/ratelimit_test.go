package farm

import "testing"

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)

	if err := rl.Allow("css"); err != nil {
		t.Fatalf("first dispatch: unexpected error: %v", err)
	}
	if err := rl.Allow("css"); err != nil {
		t.Fatalf("second dispatch (within burst): unexpected error: %v", err)
	}
}

func TestRateLimiter_RejectsBeyondBurst(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, nil)

	if err := rl.Allow("js"); err != nil {
		t.Fatalf("first dispatch: unexpected error: %v", err)
	}
	err := rl.Allow("js")
	if err == nil {
		t.Fatal("expected rate limit error on second dispatch")
	}
	var rlErr *RateLimitError
	if !asRateLimitError(err, &rlErr) {
		t.Fatalf("expected *RateLimitError, got %T", err)
	}
	if rlErr.TransformerName != "js" {
		t.Fatalf("unexpected transformer name: %q", rlErr.TransformerName)
	}
}

func TestRateLimiter_PerTransformerLimitsAreIndependent(t *testing.T) {
	limits := map[string]struct {
		Rate  float64
		Burst int
	}{
		"slow": {Rate: 0.001, Burst: 1},
	}
	rl := NewRateLimiter(1000, 1000, limits)

	if err := rl.Allow("slow"); err != nil {
		t.Fatalf("first slow dispatch: unexpected error: %v", err)
	}
	if err := rl.Allow("slow"); err == nil {
		t.Fatal("expected slow transformer to be rate limited on its second dispatch")
	}
	if err := rl.Allow("fast"); err != nil {
		t.Fatalf("fast transformer should use the generous default bucket: %v", err)
	}
}

func asRateLimitError(err error, target **RateLimitError) bool {
	rlErr, ok := err.(*RateLimitError)
	if !ok {
		return false
	}
	*target = rlErr
	return true
}
