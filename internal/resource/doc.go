// Package resource implements process-wide limits shared by retrievals.
//
// The Controller manages three resource types:
//
//   - Memory: bytes held by the in-memory blob cache (non-blocking, fail-fast)
//   - Requests: concurrent range requests across all executors
//   - IO: download throughput (token bucket)
//
// Every retrieval call still owns its private worker pool. The controller
// only bounds what many concurrent retrievals may consume together.
//
//	rc := resource.NewController(resource.Config{
//	    MaxInFlight:        32,
//	    IOLimitBytesPerSec: 100 << 20,
//	})
//
//	if err := rc.AcquireRequest(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseRequest()
//
//	body := resource.NewRateLimitedReader(ctx, resp.Body, rc)
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
