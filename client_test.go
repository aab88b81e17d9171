package rangeidx_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx"
	"github.com/hupe1980/rangeidx/blobstore"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/index/jsonlstore"
	"github.com/hupe1980/rangeidx/testutil"
)

// fixture stores one GRIB file with params t, z and u on levels 500 and
// 850, in that nesting order.
type fixture struct {
	tr   *testutil.Transport
	url  string
	data []byte
	recs []*testutil.Record
}

func newFixture(url string) *fixture {
	var recs []*testutil.Record
	for _, p := range []string{"t", "z", "u"} {
		for _, l := range []string{"500", "850"} {
			recs = append(recs, testutil.NewRecord("param", p, "level", l))
		}
	}
	data := testutil.EncodeGRIB(url, 2, 7, recs...)
	tr := testutil.NewTransport()
	tr.Put(url, data)
	return &fixture{tr: tr, url: url, data: data, recs: recs}
}

func (f *fixture) bytesOf(r *testutil.Record) []byte {
	return f.data[r.Off : r.Off+r.Len]
}

func newClient(t *testing.T, tr rangeidx.Option, opts ...rangeidx.Option) *rangeidx.Client {
	t.Helper()
	c, err := rangeidx.New(append([]rangeidx.Option{rangeidx.WithCacheDir(t.TempDir()), tr}, opts...)...)
	require.NoError(t, err)
	return c
}

func jsonlStore() index.Store {
	return jsonlstore.New(jsonlstore.WithCompression(jsonlstore.Zstd))
}

func attrs(t *testing.T, entries []index.Entry, keys ...string) []string {
	t.Helper()
	out := make([]string, len(entries))
	for i, e := range entries {
		vals := make([]string, len(keys))
		for j, k := range keys {
			vals[j] = e.Attrs[k]
		}
		out[i] = strings.Join(vals, ",")
	}
	return out
}

func TestSelectOrderRetrieve(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithAliases(map[string]string{"variable": "param"}))

	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	require.Equal(t, 6, src.Len())
	assert.Equal(t, []string{"param", "level"}, src.Index().Schema())

	req := map[string]any{"level": []int{500, 850}, "variable": []string{"t", "z"}}
	sel, err := src.Select(req)
	require.NoError(t, err)
	sel, err = sel.OrderBy(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"t,500", "z,500", "t,850", "z,850"}, attrs(t, sel.Entries(), "param", "level"))

	fs, err := sel.Retrieve(ctx, "cluster(1)")
	require.NoError(t, err)
	require.Equal(t, 4, fs.Len())
	assert.Equal(t, 1, fs.Stats().Requests)

	want := []*testutil.Record{f.recs[0], f.recs[2], f.recs[1], f.recs[3]}
	i := 0
	for rec, err := range fs.All() {
		require.NoError(t, err)
		assert.Equal(t, f.bytesOf(want[i]), rec.Data)

		dec, err := rec.Decode()
		require.NoError(t, err)
		p, _ := dec.Get("param")
		assert.Equal(t, want[i].Attrs["param"], p)
		i++
	}
	assert.Equal(t, 4, i)
}

func TestIndex_CachedAcrossClients(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	dir := t.TempDir()

	m1 := &rangeidx.BasicMetricsCollector{}
	c1, err := rangeidx.New(rangeidx.WithCacheDir(dir), rangeidx.WithTransport(f.tr), rangeidx.WithMetricsCollector(m1))
	require.NoError(t, err)
	_, err = c1.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), m1.GetStats().IndexBuilds)
	assert.Equal(t, 1, f.tr.Calls("whole"))

	m2 := &rangeidx.BasicMetricsCollector{}
	c2, err := rangeidx.New(rangeidx.WithCacheDir(dir), rangeidx.WithTransport(f.tr), rangeidx.WithMetricsCollector(m2))
	require.NoError(t, err)
	src, err := c2.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	assert.Equal(t, 6, src.Len())
	assert.Equal(t, int64(1), m2.GetStats().IndexCacheHits)
	assert.Equal(t, int64(0), m2.GetStats().IndexBuilds)
	assert.Equal(t, 1, f.tr.Calls("whole"), "cached index is not rebuilt")
}

func TestIndex_JSONLStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithIndexStore(jsonlStore()))

	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	assert.Equal(t, 6, src.Len())
}

func TestIndex_Remapping(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr),
		rangeidx.WithRemapping(index.Remapping{"param_level": "{param}{level}"}))

	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	sel, err := src.Select(map[string]any{"param_level": "z850"})
	require.NoError(t, err)
	require.Equal(t, 1, sel.Len())
	e, err := sel.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, f.recs[3].Off, e.Offset)
}

func TestSelect_Progressive(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	a, err := src.Select(map[string]any{"param": []string{"t", "z"}})
	require.NoError(t, err)
	b, err := a.Select(map[string]any{"param": "z"})
	require.NoError(t, err)
	assert.Equal(t, []string{"z", "z"}, attrs(t, b.Entries(), "param"))

	none, err := b.Select(map[string]any{"param": "u"})
	require.NoError(t, err)
	assert.Equal(t, 0, none.Len())

	// Views are immutable.
	assert.Equal(t, 4, a.Len())
	assert.Equal(t, 6, src.Len())
}

func TestSelect_KeepsOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	ord, err := src.OrderBy(map[string]any{"level": "descending"})
	require.NoError(t, err)
	sel, err := ord.Select(map[string]any{"param": []string{"u", "t"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"t,850", "u,850", "t,500", "u,500"}, attrs(t, sel.Entries(), "param", "level"))
}

func TestSelect_UnknownKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")

	lax := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := lax.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	sel, err := src.Select(map[string]any{"nope": 1})
	require.NoError(t, err)
	assert.Equal(t, 6, sel.Len())

	strict := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithStrict(true))
	src, err = strict.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	_, err = src.Select(map[string]any{"nope": 1})
	assert.ErrorIs(t, err, rangeidx.ErrUnknownKey)
}

func TestSelect_InvalidValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	_, err = src.Select(map[string]any{"param": struct{}{}})
	var se *rangeidx.SelectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "param", se.Key)

	_, err = src.OrderBy(42)
	assert.ErrorAs(t, err, &se)
}

func TestIndex_MissingResource(t *testing.T) {
	c := newClient(t, rangeidx.WithTransport(testutil.NewTransport()))
	_, err := c.Index(context.Background(), "mem://missing.grib", testutil.Decoder{})

	var be *rangeidx.IndexBuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "mem://missing.grib", be.Resource)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIndex_MissingResourceBlobstore(t *testing.T) {
	tr := blobstore.NewTransport(blobstore.WithMount("mem://", blobstore.NewMemoryStore()))
	c := newClient(t, rangeidx.WithTransport(tr))
	_, err := c.Index(context.Background(), "mem://missing.grib", testutil.Decoder{})
	assert.ErrorIs(t, err, rangeidx.ErrNotFound)
}

func TestRetrieve_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	boom := errors.New("boom")
	f.tr.FailRange(f.url, f.recs[1].Off, boom)

	m := &rangeidx.BasicMetricsCollector{}
	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithMetricsCollector(m))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	fs, err := src.Retrieve(ctx, "maximum-split")
	require.ErrorIs(t, err, boom)
	require.NotNil(t, fs)
	assert.ErrorIs(t, fs.Err(), boom)

	_, err = fs.At(1)
	var re *rangeidx.RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, f.recs[1].Off, re.Offset)

	rec, err := fs.At(2)
	require.NoError(t, err)
	assert.Equal(t, f.bytesOf(f.recs[2]), rec.Data)

	assert.Equal(t, int64(1), m.GetStats().FetchErrors)
}

func TestRetrieve_InvalidMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	_, err = src.Retrieve(ctx, "no-such-method")
	require.Error(t, err)

	_, err = rangeidx.New(rangeidx.WithMethod("cluster(0)"))
	require.Error(t, err)
}

func TestPlan_CostModelInPipes(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	const method = "optimal-split|maximum-split"

	// Records are 7 bytes apart: too far for the default costs.
	src, err := newClient(t, rangeidx.WithTransport(f.tr)).Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	plan, err := src.Plan(method)
	require.NoError(t, err)
	assert.Equal(t, 6, plan.Requests())

	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithCostModel(1, 10))
	src, err = c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	plan, err = src.Plan(method)
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Requests())
}

func TestRetrieve_Empty(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	sel, err := src.Select(map[string]any{"param": "q"})
	require.NoError(t, err)
	fs, err := sel.Retrieve(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, fs.Len())
	assert.Equal(t, 0, f.tr.Calls("range"))
}

func TestSource_At(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	indexed, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)
	src := c.FromIndex(indexed.Index(), nil)

	rec, err := src.At(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, f.bytesOf(f.recs[4]), rec.Data)
	_, err = rec.Decode()
	assert.ErrorIs(t, err, rangeidx.ErrNoDecoder)

	_, err = src.At(ctx, 6)
	assert.ErrorIs(t, err, rangeidx.ErrOutOfRange)

	f.tr.Truncate(f.url, f.recs[0].Off, 3)
	_, err = src.At(ctx, 0)
	var re *rangeidx.RetrievalError
	assert.ErrorAs(t, err, &re)
}

func TestSource_Download(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	src, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	sel, err := src.Select(map[string]any{"level": 850})
	require.NoError(t, err)

	var buf bytes.Buffer
	stats, err := sel.Download(ctx, &buf)
	require.NoError(t, err)

	var want []byte
	for _, i := range []int{1, 3, 5} {
		want = append(want, f.bytesOf(f.recs[i])...)
	}
	assert.Equal(t, want, buf.Bytes())
	assert.Equal(t, int64(len(want)), stats.RequestedBytes)

	f.tr.FailURL(f.url, errors.New("gone"))
	buf.Reset()
	_, err = sel.Download(ctx, &buf)
	require.Error(t, err)
	assert.Zero(t, buf.Len(), "nothing is written on failure")
}

func TestOpenSidecar(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://d/a.grib")

	var sb strings.Builder
	for _, r := range f.recs {
		fmt.Fprintf(&sb, `{"_offset": %d, "_length": %d, "param": %q, "levelist": %s}`+"\n",
			r.Off, r.Len, r.Attrs["param"], r.Attrs["level"])
	}
	f.tr.Put("mem://d/a.index", []byte(sb.String()))

	c := newClient(t, rangeidx.WithTransport(f.tr), rangeidx.WithAliases(map[string]string{"level": "levelist"}))
	src, err := c.OpenSidecar(ctx, "mem://d/a.index", f.url, testutil.Decoder{})
	require.NoError(t, err)
	require.Equal(t, 6, src.Len())
	assert.Equal(t, 0, f.tr.Calls("range"), "no scan of the data")

	sel, err := src.Select(map[string]any{"param": "z", "level": 500.0})
	require.NoError(t, err)
	require.Equal(t, 1, sel.Len())

	rec, err := sel.At(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, f.bytesOf(f.recs[2]), rec.Data)

	// Cached under the sidecar location.
	_, err = c.OpenSidecar(ctx, "mem://d/a.index", f.url, testutil.Decoder{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.tr.Calls("whole"))
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	fa := newFixture("mem://a.grib")
	fb := newFixture("mem://b.grib")
	fa.tr.Put(fb.url, fb.data)

	c := newClient(t, rangeidx.WithTransport(fa.tr))
	a, err := c.Index(ctx, fa.url, testutil.Decoder{})
	require.NoError(t, err)
	b, err := c.Index(ctx, fb.url, testutil.Decoder{})
	require.NoError(t, err)

	m := rangeidx.Merge(a, b)
	assert.Equal(t, 12, m.Len())
	e, err := m.Entry(7)
	require.NoError(t, err)
	assert.Equal(t, fb.url, e.Path)
	assert.Equal(t, fb.recs[1].Off, e.Offset)

	rec, err := m.At(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, fb.bytesOf(fb.recs[1]), rec.Data)

	_, err = m.Entry(12)
	assert.ErrorIs(t, err, rangeidx.ErrOutOfRange)

	sel, err := m.Select(map[string]any{"param": "t"})
	require.NoError(t, err)
	assert.Equal(t, 4, sel.Len())

	fs, err := sel.Retrieve(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 4, fs.Len())
	r3, err := fs.At(3)
	require.NoError(t, err)
	assert.Equal(t, fb.bytesOf(fb.recs[1]), r3.Data)

	var buf bytes.Buffer
	_, err = sel.Download(ctx, &buf)
	require.NoError(t, err)
	want := append(append(append(append([]byte(nil),
		fa.bytesOf(fa.recs[0])...), fa.bytesOf(fa.recs[1])...),
		fb.bytesOf(fb.recs[0])...), fb.bytesOf(fb.recs[1])...)
	assert.Equal(t, want, buf.Bytes())

	assert.Len(t, m.Merge(sel).Sources(), 4)
}

func TestMulti_OrderByAcrossSources(t *testing.T) {
	ctx := context.Background()
	fa := newFixture("mem://a.grib")
	fb := newFixture("mem://b.grib")
	fa.tr.Put(fb.url, fb.data)

	c := newClient(t, rangeidx.WithTransport(fa.tr))
	a, err := c.Index(ctx, fa.url, testutil.Decoder{})
	require.NoError(t, err)
	b, err := c.Index(ctx, fb.url, testutil.Decoder{})
	require.NoError(t, err)

	m, err := rangeidx.Merge(a, b).OrderBy(map[string]any{"level": "descending"})
	require.NoError(t, err)
	require.Equal(t, 12, m.Len())

	var levels, paths []string
	for i := range m.Len() {
		e, err := m.Entry(i)
		require.NoError(t, err)
		levels = append(levels, e.Attrs["level"])
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"850", "850", "850", "850", "850", "850", "500", "500", "500", "500", "500", "500"}, levels)
	// Stable: ties keep the concatenation order.
	assert.Equal(t, []string{fa.url, fa.url, fa.url, fb.url, fb.url, fb.url}, paths[:6])

	rec, err := m.At(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, fb.bytesOf(fb.recs[1]), rec.Data)

	seq, err := m.Retrieve(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 12, seq.Len())
	r6, err := seq.At(6)
	require.NoError(t, err)
	assert.Equal(t, fa.bytesOf(fa.recs[0]), r6.Data)

	// A selection keeps the ordering across sources.
	sel, err := m.Select(map[string]any{"param": "t"})
	require.NoError(t, err)
	var want []byte
	for _, r := range []struct {
		f   *fixture
		rec int
	}{{fa, 1}, {fb, 1}, {fa, 0}, {fb, 0}} {
		want = append(want, r.f.bytesOf(r.f.recs[r.rec])...)
	}
	var buf bytes.Buffer
	_, err = sel.Download(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, want, buf.Bytes())

	var got []byte
	for rec, err := range sel.All(ctx) {
		require.NoError(t, err)
		got = append(got, rec.Data...)
	}
	assert.Equal(t, want, got)

	_, err = m.Entry(12)
	assert.ErrorIs(t, err, rangeidx.ErrOutOfRange)
	_, err = m.At(ctx, -1)
	assert.ErrorIs(t, err, rangeidx.ErrOutOfRange)
}

func TestMulti_RetrieveKeepsPositions(t *testing.T) {
	ctx := context.Background()
	f := newFixture("mem://a.grib")
	c := newClient(t, rangeidx.WithTransport(f.tr))
	good, err := c.Index(ctx, f.url, testutil.Decoder{})
	require.NoError(t, err)

	// Overlapping entries cannot be planned.
	idx, err := index.New("mem://bad.grib", index.Version, []string{"param"}, []index.Entry{
		{Path: "mem://bad.grib", Offset: 0, Length: 10, Attrs: map[string]string{"param": "t"}},
		{Path: "mem://bad.grib", Offset: 5, Length: 10, Attrs: map[string]string{"param": "z"}},
	})
	require.NoError(t, err)
	bad := c.FromIndex(idx, nil)

	seq, err := rangeidx.Merge(bad, good).Retrieve(ctx, "")
	require.Error(t, err)
	require.Equal(t, 8, seq.Len())

	_, err = seq.At(1)
	require.Error(t, err)
	rec, err := seq.At(2)
	require.NoError(t, err)
	assert.Equal(t, f.bytesOf(f.recs[0]), rec.Data)
}

func TestIndexAll(t *testing.T) {
	ctx := context.Background()
	tr := blobstore.NewTransport(blobstore.WithMount("mem://", blobstore.NewMemoryStore()))
	for _, name := range []string{"run/b.grib", "run/a.grib", "run/notes.txt"} {
		recs := []*testutil.Record{testutil.NewRecord("param", "t"), testutil.NewRecord("param", "z")}
		require.NoError(t, tr.Put(ctx, "mem://"+name, testutil.EncodeGRIB("mem://"+name, 1, 0, recs...)))
	}

	c := newClient(t, rangeidx.WithTransport(tr))
	m, err := c.IndexAll(ctx, "mem://run/", ".grib", testutil.Decoder{})
	require.NoError(t, err)
	require.Len(t, m.Sources(), 2)
	assert.Equal(t, "mem://run/a.grib", m.Sources()[0].Index().Resource())
	assert.Equal(t, 4, m.Len())

	n := 0
	for rec, err := range m.All(ctx) {
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(rec.Data, []byte("GRIB")))
		n++
	}
	assert.Equal(t, 4, n)

	_, err = newClient(t, rangeidx.WithTransport(testutil.NewTransport())).IndexAll(ctx, "mem://", "", nil)
	assert.ErrorIs(t, err, rangeidx.ErrListUnsupported)
}

func TestLocalFile(t *testing.T) {
	ctx := context.Background()
	recs := []*testutil.Record{testutil.NewRecord("param", "t"), testutil.NewRecord("param", "z")}
	path := t.TempDir() + "/local.grib"
	data := testutil.EncodeGRIB(path, 2, 0, recs...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c := newClient(t, nil)
	src, err := c.Index(ctx, path, testutil.Decoder{})
	require.NoError(t, err)
	sel, err := src.Select(map[string]any{"param": "z"})
	require.NoError(t, err)

	rec, err := sel.At(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, data[recs[1].Off:], rec.Data)
}
