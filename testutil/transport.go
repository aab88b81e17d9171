package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Transport is an in-memory transport with failure injection. It counts
// calls and the peak number of concurrent range fetches.
type Transport struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	failures map[rangeKey]error
	urlFails map[string]error
	limits   map[rangeKey]int
	calls    map[string]int
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

type rangeKey struct {
	url    string
	offset int64
}

// NewTransport creates an empty Transport.
func NewTransport() *Transport {
	return &Transport{
		blobs:    make(map[string][]byte),
		failures: make(map[rangeKey]error),
		urlFails: make(map[string]error),
		limits:   make(map[rangeKey]int),
		calls:    make(map[string]int),
	}
}

// Put stores data under url.
func (t *Transport) Put(url string, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blobs[url] = data
}

// FailRange makes the range fetch of url at offset return err.
func (t *Transport) FailRange(url string, offset int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[rangeKey{url, offset}] = err
}

// FailURL makes every call for url return err.
func (t *Transport) FailURL(url string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.urlFails[url] = err
}

// Truncate cuts the range fetch of url at offset to n bytes.
func (t *Transport) Truncate(url string, offset int64, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits[rangeKey{url, offset}] = n
}

// SetDelay makes every range fetch sleep for d.
func (t *Transport) SetDelay(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delay = d
}

// Calls returns how often op was called: "range", "whole" or "exists".
func (t *Transport) Calls(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[op]
}

// MaxInFlight returns the peak number of concurrent range fetches.
func (t *Transport) MaxInFlight() int {
	return int(t.maxInFlight.Load())
}

func (t *Transport) lookup(op, url string) ([]byte, time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls[op]++
	if err := t.urlFails[url]; err != nil {
		return nil, 0, err
	}
	data, ok := t.blobs[url]
	if !ok {
		return nil, 0, fmt.Errorf("testutil: %s: %w", url, os.ErrNotExist)
	}
	return data, t.delay, nil
}

// FetchRange implements retrieve.Transport.
func (t *Transport) FetchRange(ctx context.Context, url string, start, length int64) ([]byte, error) {
	n := t.inFlight.Add(1)
	defer t.inFlight.Add(-1)
	for {
		peak := t.maxInFlight.Load()
		if n <= peak || t.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	data, delay, err := t.lookup("range", url)
	if err != nil {
		return nil, err
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	t.mu.Lock()
	ferr := t.failures[rangeKey{url, start}]
	limit, limited := t.limits[rangeKey{url, start}]
	t.mu.Unlock()
	if ferr != nil {
		return nil, ferr
	}

	if start >= int64(len(data)) {
		return nil, nil
	}
	end := min(start+length, int64(len(data)))
	out := append([]byte(nil), data[start:end]...)
	if limited && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// FetchWhole implements retrieve.Transport.
func (t *Transport) FetchWhole(_ context.Context, url string) ([]byte, error) {
	data, _, err := t.lookup("whole", url)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

// Exists implements retrieve.Transport.
func (t *Transport) Exists(_ context.Context, url string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls["exists"]++
	if err := t.urlFails[url]; err != nil {
		return false, err
	}
	_, ok := t.blobs[url]
	return ok, nil
}
