package retrieve

import "context"

// Transport fetches bytes of remote or local resources. Implementations
// own retries; the executor never retries.
type Transport interface {
	// FetchRange returns length bytes at start. A shorter result means the
	// resource ended first.
	FetchRange(ctx context.Context, url string, start, length int64) ([]byte, error)
	// FetchWhole returns the entire resource.
	FetchWhole(ctx context.Context, url string) ([]byte, error)
	// Exists reports whether the resource exists.
	Exists(ctx context.Context, url string) (bool, error)
}
