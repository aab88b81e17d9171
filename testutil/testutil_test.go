package testutil

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomRecords(t *testing.T) {
	domain := Domain{
		"param": {"t", "z"},
		"level": {"500", "850"},
	}
	recs := NewRNG(1).RandomRecords("a.grib", 50, domain)
	require.Len(t, recs, 50)

	prevEnd := int64(0)
	for _, r := range recs {
		assert.Equal(t, []string{"level", "param"}, r.Keys())
		assert.Contains(t, domain["param"], r.Attrs["param"])
		assert.GreaterOrEqual(t, r.Offset(), prevEnd, "records must not overlap")
		assert.Positive(t, r.Length())
		assert.Equal(t, "a.grib", r.Path())
		prevEnd = r.Offset() + r.Length()
	}

	// Same seed, same records.
	again := NewRNG(1).RandomRecords("a.grib", 50, domain)
	assert.Equal(t, recs, again)
}

func TestEncodeGRIB_RoundTrip(t *testing.T) {
	for _, edition := range []int{1, 2} {
		recs := []*Record{
			NewRecord("param", "t", "level", "500"),
			NewRecord("param", "z", "level", "850"),
		}
		recs[1].Data = []float64{1.5, 2.5}

		data := EncodeGRIB("x.grib", edition, 3, recs...)
		assert.Equal(t, int64(0), recs[0].Off)
		assert.Equal(t, recs[0].Len+3, recs[1].Off)
		assert.Equal(t, int64(len(data)), recs[1].Off+recs[1].Len)

		for _, r := range recs {
			msg := data[r.Off : r.Off+r.Len]
			assert.Equal(t, "GRIB", string(msg[:4]))
			assert.Equal(t, "7777", string(msg[len(msg)-4:]))

			dec, err := Decoder{}.Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, r.Fields, dec.Keys())
			v, ok := dec.Get("param")
			assert.True(t, ok)
			assert.Equal(t, r.Attrs["param"], v)
			vals, err := dec.Values()
			require.NoError(t, err)
			assert.Equal(t, r.Data, vals)
		}
	}

	_, err := Decoder{}.Decode([]byte("nope"))
	assert.Error(t, err)
}

func TestTransport(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport()
	tr.Put("mem://a", []byte("0123456789"))

	got, err := tr.FetchRange(ctx, "mem://a", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "234", string(got))

	got, err = tr.FetchRange(ctx, "mem://a", 8, 5)
	require.NoError(t, err)
	assert.Equal(t, "89", string(got))

	boom := errors.New("boom")
	tr.FailRange("mem://a", 4, boom)
	_, err = tr.FetchRange(ctx, "mem://a", 4, 1)
	assert.ErrorIs(t, err, boom)

	tr.Truncate("mem://a", 0, 2)
	got, err = tr.FetchRange(ctx, "mem://a", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "01", string(got))

	_, err = tr.FetchWhole(ctx, "mem://missing")
	assert.ErrorIs(t, err, os.ErrNotExist)

	ok, err := tr.Exists(ctx, "mem://a")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 4, tr.Calls("range"))
	assert.Equal(t, 1, tr.Calls("whole"))
	assert.Equal(t, 1, tr.Calls("exists"))
	assert.Equal(t, 1, tr.MaxInFlight())
}
