package farm

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/thornforge/buildcore/internal/asset"
	"github.com/thornforge/buildcore/internal/driver"
)

// RunTransformFunc performs the actual pipeline-runner invocation a
// dispatch requests: the work named createHandle('runTransform') in spec
// §4.6 step 3.
type RunTransformFunc func(ctx context.Context, configCachePath string, input asset.AssetRequestInput) (driver.RunResult, error)

// Farm is a worker-farm handle. Spec §5 requires farm inputs to be
// structurally serializable but leaves the transport unspecified; this
// implementation dispatches in-process through run while applying the
// same circuit-breaking, rate-limiting, and retry discipline a real
// out-of-process pool would need, so swapping run for an RPC call later
// changes nothing about the policy layered around it. Farm implements
// driver.Farm.
type Farm struct {
	run      RunTransformFunc
	breakers *CircuitBreakerRegistry
	limiter  *RateLimiter
	retry    RetryConfig
}

// New creates a Farm dispatching through run, with optional circuit
// breaker registry, rate limiter, and retry policy. breakers and limiter
// may be nil to disable that layer.
func New(run RunTransformFunc, breakers *CircuitBreakerRegistry, limiter *RateLimiter, retry RetryConfig) *Farm {
	return &Farm{run: run, breakers: breakers, limiter: limiter, retry: retry}
}

// RunTransform implements driver.Farm. Dispatches are keyed by the
// transform chain associated with input's file extension, the unit the
// domain stack's "bounds concurrent dispatches per transformer" and
// "per-transformer circuit breaker" wiring actually governs, since a
// single asset request routes through exactly the chain its extension
// resolves to.
func (f *Farm) RunTransform(ctx context.Context, configCachePath string, input asset.AssetRequestInput) (driver.RunResult, error) {
	if f.run == nil {
		return driver.RunResult{}, fmt.Errorf("farm: no RunTransformFunc configured for chain %q", chainKeyFor(input))
	}

	chainKey := chainKeyFor(input)

	if f.limiter != nil {
		if err := f.limiter.Allow(chainKey); err != nil {
			return driver.RunResult{}, err
		}
	}

	var breaker *CircuitBreaker
	if f.breakers != nil {
		breaker = f.breakers.Get(chainKey)
		if !breaker.Allow() {
			return driver.RunResult{}, fmt.Errorf("farm: circuit open for transform chain %q", chainKey)
		}
	}

	var result driver.RunResult
	err := Retry(ctx, f.retry, nil, func(ctx context.Context) error {
		r, runErr := f.run(ctx, configCachePath, input)
		if runErr != nil {
			if breaker != nil {
				breaker.RecordFailure()
			}
			return runErr
		}
		if breaker != nil {
			breaker.RecordSuccess()
		}
		result = r
		return nil
	})
	return result, err
}

func chainKeyFor(input asset.AssetRequestInput) string {
	ext := strings.TrimPrefix(filepath.Ext(input.FilePath), ".")
	if ext == "" {
		return "default"
	}
	return ext
}
