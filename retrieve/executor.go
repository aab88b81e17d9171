package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/rangeidx/internal/resource"
	"github.com/hupe1980/rangeidx/parts"
)

// DefaultMaxThreads bounds concurrent fetches of one Execute call.
const DefaultMaxThreads = 8

// ErrTruncated is returned when a body ends before the last part of its block.
var ErrTruncated = errors.New("retrieve: truncated body")

// FetchError reports a failed block.
type FetchError struct {
	Path   string
	Offset int64
	Length int64
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("retrieve: fetch %s [%d,%d): %v", e.Path, e.Offset, e.Offset+e.Length, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options configures an Executor.
type Options struct {
	// MaxThreads bounds the private worker pool of every Execute call.
	MaxThreads int
	// Logger receives per-block events. Nil means slog.Default().
	Logger *slog.Logger
	// Resources applies process-wide request and IO limits. Optional.
	Resources *resource.Controller
}

// Executor fetches planned blocks in parallel.
type Executor struct {
	transport Transport
	opts      Options
}

// NewExecutor creates an Executor over t.
func NewExecutor(t Transport, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxThreads: DefaultMaxThreads,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Executor{transport: t, opts: opts}
}

// Execute fetches every block of plan with min(MaxThreads, requests)
// workers and waits for all of them. A failed block does not stop its
// siblings: the returned Result holds every block that succeeded, and the
// error is the first failure observed.
func (e *Executor) Execute(ctx context.Context, plan *Plan) (*Result, error) {
	res := newResult(plan)

	total := plan.Requests()
	if total == 0 {
		return res, nil
	}

	start := time.Now()

	g := new(errgroup.Group)
	g.SetLimit(min(e.opts.MaxThreads, total))

	for _, path := range plan.Paths {
		slots := res.blocks[path]
		for i := range slots {
			g.Go(func() error {
				data, err := e.fetch(ctx, path, slots[i].Block)
				if err != nil {
					err = &FetchError{Path: path, Offset: slots[i].Block.Offset, Length: slots[i].Block.Length, Err: err}
					e.opts.Logger.Warn("block fetch failed", "path", path, "offset", slots[i].Block.Offset, "length", slots[i].Block.Length, "error", err)
				}
				// Each goroutine owns its slot.
				slots[i].Data = data
				slots[i].Err = err
				return err
			})
		}
	}

	err := g.Wait()

	e.opts.Logger.Debug("retrieval finished",
		"paths", len(plan.Paths),
		"requests", total,
		"workers", min(e.opts.MaxThreads, total),
		"duration", time.Since(start),
		"failed", err != nil,
	)
	return res, err
}

func (e *Executor) fetch(ctx context.Context, path string, b parts.Block) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc := e.opts.Resources
	if err := rc.AcquireRequest(ctx); err != nil {
		return nil, err
	}
	defer rc.ReleaseRequest()

	if err := rc.AcquireIO(ctx, int(b.Length)); err != nil {
		return nil, err
	}

	data, err := e.transport.FetchRange(ctx, path, b.Offset, b.Length)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > b.Length {
		data = data[:b.Length]
	}

	// A block may run past EOF; only its parts must be complete.
	need := b.Length
	if n := len(b.Parts); n > 0 {
		need = b.Parts[n-1].End() - b.Offset
	}
	if int64(len(data)) < need {
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, len(data), need)
	}
	return data, nil
}
