package retrieve_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx/internal/resource"
	"github.com/hupe1980/rangeidx/parts"
	"github.com/hupe1980/rangeidx/retrieve"
	"github.com/hupe1980/rangeidx/testutil"
)

func fixture(t *testing.T) (*testutil.Transport, map[string][]byte) {
	t.Helper()
	rng := testutil.NewRNG(7)
	tr := testutil.NewTransport()
	files := map[string][]byte{
		"mem://a.grib": rng.Bytes(4096),
		"mem://b.grib": rng.Bytes(1024),
	}
	for url, data := range files {
		tr.Put(url, data)
	}
	return tr, files
}

var byPath = map[string][]parts.Part{
	"mem://a.grib": {{Offset: 0, Length: 100}, {Offset: 100, Length: 50}, {Offset: 1000, Length: 200}, {Offset: 3000, Length: 96}},
	"mem://b.grib": {{Offset: 10, Length: 10}, {Offset: 900, Length: 124}},
}

func TestExecute_AllBlocks(t *testing.T) {
	tr, files := fixture(t)
	paths := []string{"mem://b.grib", "mem://a.grib"}

	plan, err := retrieve.NewPlan(paths, byPath, parts.OnePerRecord{})
	require.NoError(t, err)
	assert.Equal(t, 6, plan.Requests())
	assert.Equal(t, paths, plan.Paths)

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, paths, res.Paths())

	for path, ps := range byPath {
		for _, p := range ps {
			got, err := res.Record(path, p)
			require.NoError(t, err)
			assert.Equal(t, files[path][p.Offset:p.End()], got)
		}
	}

	st := res.Stats()
	assert.Equal(t, 6, st.Requests)
	assert.Equal(t, 6, st.Parts)
	assert.Equal(t, st.RequestedBytes, st.DownloadedBytes)
	assert.Equal(t, 6, tr.Calls("range"))
}

func TestExecute_MergedBlocks(t *testing.T) {
	tr, files := fixture(t)
	plan, err := retrieve.NewPlan([]string{"mem://a.grib"}, byPath, parts.OneBlock{})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Requests())

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.NoError(t, err)

	p := byPath["mem://a.grib"][2]
	got, err := res.Record("mem://a.grib", p)
	require.NoError(t, err)
	assert.Equal(t, files["mem://a.grib"][p.Offset:p.End()], got)

	st := res.Stats()
	assert.Equal(t, int64(3096), st.DownloadedBytes)
	assert.Equal(t, int64(446), st.RequestedBytes)

	_, err = res.Record("mem://b.grib", parts.Part{Offset: 10, Length: 10})
	assert.ErrorIs(t, err, parts.ErrPartOutsideBlock)
}

func TestExecute_PartialFailure(t *testing.T) {
	tr, files := fixture(t)
	boom := errors.New("boom")
	tr.FailRange("mem://a.grib", 1000, boom)

	plan, err := retrieve.NewPlan([]string{"mem://a.grib", "mem://b.grib"}, byPath, parts.OnePerRecord{})
	require.NoError(t, err)

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var fe *retrieve.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "mem://a.grib", fe.Path)
	assert.Equal(t, int64(1000), fe.Offset)

	// Siblings still arrive.
	_, err = res.Record("mem://a.grib", byPath["mem://a.grib"][2])
	assert.ErrorIs(t, err, boom)
	got, err := res.Record("mem://a.grib", byPath["mem://a.grib"][3])
	require.NoError(t, err)
	assert.Equal(t, files["mem://a.grib"][3000:3096], got)
	got, err = res.Record("mem://b.grib", byPath["mem://b.grib"][0])
	require.NoError(t, err)
	assert.Equal(t, files["mem://b.grib"][10:20], got)

	assert.ErrorIs(t, res.Err(), boom)
	assert.Equal(t, 6, tr.Calls("range"))
}

func TestExecute_MultipleFailuresAggregate(t *testing.T) {
	tr, _ := fixture(t)
	tr.FailURL("mem://b.grib", errors.New("gone"))
	tr.FailRange("mem://a.grib", 0, errors.New("reset"))

	plan, err := retrieve.NewPlan([]string{"mem://a.grib", "mem://b.grib"}, byPath, parts.OnePerRecord{})
	require.NoError(t, err)

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.Error(t, err)

	agg := res.Err()
	require.Error(t, agg)
	assert.Contains(t, agg.Error(), "3 errors occurred")
}

func TestExecute_TruncatedBody(t *testing.T) {
	tr, _ := fixture(t)
	tr.Truncate("mem://a.grib", 1000, 150)

	plan, err := retrieve.NewPlan([]string{"mem://a.grib"}, byPath, parts.OnePerRecord{})
	require.NoError(t, err)

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.ErrorIs(t, err, retrieve.ErrTruncated)

	var fe *retrieve.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, int64(1000), fe.Offset)

	_, err = res.Record("mem://a.grib", byPath["mem://a.grib"][0])
	assert.NoError(t, err)
}

func TestExecute_BlockPastEOF(t *testing.T) {
	tr, files := fixture(t)
	// Aligned blocks of 4096 round the last record of b.grib up past its end.
	plan, err := retrieve.NewPlan([]string{"mem://b.grib"}, byPath, parts.Blocked{Size: 4096})
	require.NoError(t, err)
	require.Equal(t, 1, plan.Requests())
	require.Greater(t, plan.Blocks["mem://b.grib"][0].End(), int64(len(files["mem://b.grib"])))

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.NoError(t, err)

	p := byPath["mem://b.grib"][1]
	got, err := res.Record("mem://b.grib", p)
	require.NoError(t, err)
	assert.Equal(t, files["mem://b.grib"][900:], got)
}

func TestExecute_BoundedWorkers(t *testing.T) {
	tr := testutil.NewTransport()
	tr.Put("mem://big", testutil.NewRNG(1).Bytes(64*100))
	tr.SetDelay(5 * time.Millisecond)

	ps := make([]parts.Part, 0, 64)
	for i := range 64 {
		ps = append(ps, parts.Part{Offset: int64(i * 100), Length: 50})
	}
	plan, err := retrieve.NewPlan([]string{"mem://big"}, map[string][]parts.Part{"mem://big": ps}, parts.OnePerRecord{})
	require.NoError(t, err)

	ex := retrieve.NewExecutor(tr, func(o *retrieve.Options) { o.MaxThreads = 3 })
	_, err = ex.Execute(context.Background(), plan)
	require.NoError(t, err)

	assert.Equal(t, 64, tr.Calls("range"))
	assert.LessOrEqual(t, tr.MaxInFlight(), 3)
	assert.GreaterOrEqual(t, tr.MaxInFlight(), 1)
}

func TestExecute_ResourceLimits(t *testing.T) {
	tr, _ := fixture(t)
	tr.SetDelay(2 * time.Millisecond)
	rc := resource.NewController(resource.Config{MaxInFlight: 2})

	plan, err := retrieve.NewPlan([]string{"mem://a.grib", "mem://b.grib"}, byPath, parts.OnePerRecord{})
	require.NoError(t, err)

	ex := retrieve.NewExecutor(tr, func(o *retrieve.Options) {
		o.MaxThreads = 16
		o.Resources = rc
	})
	_, err = ex.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.LessOrEqual(t, tr.MaxInFlight(), 2)
}

func TestExecute_Canceled(t *testing.T) {
	tr, _ := fixture(t)
	plan, err := retrieve.NewPlan([]string{"mem://a.grib"}, byPath, parts.OnePerRecord{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := retrieve.NewExecutor(tr).Execute(ctx, plan)
	require.ErrorIs(t, err, context.Canceled)
	assert.Error(t, res.Err())
	assert.Equal(t, 0, tr.Calls("range"))
}

func TestExecute_EmptyPlan(t *testing.T) {
	tr, _ := fixture(t)
	plan, err := retrieve.NewPlan([]string{"mem://a.grib"}, map[string][]parts.Part{}, parts.Auto{})
	require.NoError(t, err)
	assert.Empty(t, plan.Paths)
	assert.Equal(t, 0, plan.Requests())

	res, err := retrieve.NewExecutor(tr).Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.NoError(t, res.Err())
	assert.Empty(t, res.Paths())
	assert.Equal(t, parts.Stats{}, res.Stats())
}

func TestNewPlan_RejectsOverlap(t *testing.T) {
	_, err := retrieve.NewPlan([]string{"x"}, map[string][]parts.Part{
		"x": {{Offset: 0, Length: 10}, {Offset: 5, Length: 10}},
	}, parts.Auto{})
	assert.ErrorIs(t, err, parts.ErrOverlappingParts)
}

func TestPlan_Stats(t *testing.T) {
	plan, err := retrieve.NewPlan([]string{"mem://a.grib", "mem://b.grib"}, byPath, parts.OneBlock{})
	require.NoError(t, err)
	st := plan.Stats()
	assert.Equal(t, 2, st.Requests)
	assert.Equal(t, 6, st.Parts)
	assert.Equal(t, int64(3096+1014), st.DownloadedBytes)
}
