package rangeidx_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx"
	"github.com/hupe1980/rangeidx/testutil"
)

func TestLogger(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")

	var buf bytes.Buffer
	logger := rangeidx.NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithLogger(logger))
	assert.Same(t, logger, c.Logger())

	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	_, err = src.Select(map[string]any{"nope": 1, "param": "t"})
	require.NoError(t, err)
	_, err = src.Retrieve(ctx, "minimum-split")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"index built"`)
	assert.Contains(t, out, `"resource":"mem://a.grib"`)
	assert.Contains(t, out, `"msg":"ignoring unknown selection key"`)
	assert.Contains(t, out, `"key":"nope"`)
	assert.Contains(t, out, `"msg":"lookup completed"`)
	assert.Contains(t, out, `"method":"minimum-split"`)
}

func TestNoopLogger(t *testing.T) {
	c, err := rangeidx.New(rangeidx.WithCacheDir(t.TempDir()), rangeidx.WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, c.Logger())
	c.Logger().Info("discarded")
}

func TestBasicMetricsCollector(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	m := &rangeidx.BasicMetricsCollector{}
	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithMetricsCollector(m))

	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	sel, err := src.Select(map[string]any{"level": 500})
	require.NoError(t, err)
	_, err = sel.Retrieve(ctx, "maximum-split")
	require.NoError(t, err)

	st := m.GetStats()
	assert.Equal(t, int64(1), st.IndexBuilds)
	assert.Equal(t, int64(6), st.IndexEntries)
	assert.Equal(t, int64(1), st.LookupCount)
	assert.Equal(t, int64(3), st.LookupMatched)
	assert.Equal(t, int64(1), st.PlanCount)
	assert.Equal(t, int64(3), st.PlannedRequests)
	assert.Equal(t, int64(1), st.FetchCount)
	assert.Zero(t, st.FetchErrors)

	var want int64
	for _, i := range []int{0, 2, 4} {
		want += f.recs[i].Len
	}
	assert.Equal(t, want, st.RequestedBytes)
	assert.Equal(t, want, st.DownloadedBytes)
}
