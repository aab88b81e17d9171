package grib_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/rangeidx/grib"
	"github.com/hupe1980/rangeidx/index"
	"github.com/hupe1980/rangeidx/testutil"
)

func sample() []*testutil.Record {
	return []*testutil.Record{
		testutil.NewRecord("param", "t", "level", "500"),
		testutil.NewRecord("param", "z", "level", "500"),
		testutil.NewRecord("param", "t", "level", "850"),
	}
}

func scanAll(t *testing.T, data []byte) ([]grib.Message, error) {
	t.Helper()
	var out []grib.Message
	for msg, err := range grib.Scan(context.Background(), bytes.NewReader(data), int64(len(data))) {
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func TestScan(t *testing.T) {
	for _, tc := range []struct {
		name    string
		edition int
		gap     int
	}{
		{"edition1", 1, 0},
		{"edition2", 2, 0},
		{"edition2 with padding", 2, 17},
	} {
		t.Run(tc.name, func(t *testing.T) {
			recs := sample()
			data := testutil.EncodeGRIB("f.grib", tc.edition, tc.gap, recs...)

			msgs, err := scanAll(t, data)
			require.NoError(t, err)
			require.Len(t, msgs, len(recs))
			for i, m := range msgs {
				assert.Equal(t, recs[i].Off, m.Offset)
				assert.Equal(t, recs[i].Len, m.Length)
				assert.Equal(t, tc.edition, m.Edition)
			}
		})
	}
}

func TestScan_LeadingGarbage(t *testing.T) {
	recs := sample()
	body := testutil.EncodeGRIB("f.grib", 2, 0, recs...)
	data := append([]byte("header bytes"), body...)

	msgs, err := scanAll(t, data)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(12), msgs[0].Offset)
}

func TestScan_Empty(t *testing.T) {
	msgs, err := scanAll(t, nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = scanAll(t, []byte("no messages in here"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestScan_Malformed(t *testing.T) {
	good := testutil.EncodeGRIB("f.grib", 2, 0, sample()...)

	t.Run("truncated", func(t *testing.T) {
		msgs, err := scanAll(t, good[:len(good)-10])
		require.ErrorIs(t, err, grib.ErrTruncated)
		assert.Len(t, msgs, 2)
	})

	t.Run("missing end marker", func(t *testing.T) {
		bad := bytes.Clone(good)
		copy(bad[len(bad)-4:], "0000")
		_, err := scanAll(t, bad)
		require.ErrorIs(t, err, grib.ErrMissingEndMarker)
	})

	t.Run("unsupported edition", func(t *testing.T) {
		bad := bytes.Clone(good)
		bad[7] = 3
		msgs, err := scanAll(t, bad)
		require.ErrorIs(t, err, grib.ErrUnsupportedEdition)
		assert.Empty(t, msgs)
	})
}

func TestScan_Canceled(t *testing.T) {
	data := testutil.EncodeGRIB("f.grib", 1, 0, sample()...)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range grib.Scan(ctx, bytes.NewReader(data), int64(len(data))) {
		require.ErrorIs(t, err, context.Canceled)
	}
}

func TestRecords_BuildsIndex(t *testing.T) {
	recs := sample()
	data := testutil.EncodeGRIB("f.grib", 2, 8, recs...)

	idx, err := index.Build(context.Background(), "f.grib",
		grib.Records(context.Background(), bytes.NewReader(data), int64(len(data)), testutil.Decoder{}))
	require.NoError(t, err)

	require.Equal(t, 3, idx.Len())
	assert.Equal(t, []string{"param", "level"}, idx.Schema())
	for i, r := range recs {
		e := idx.Entry(i)
		assert.Equal(t, "f.grib", e.Path)
		assert.Equal(t, r.Off, e.Offset)
		assert.Equal(t, r.Len, e.Length)
		assert.Equal(t, r.Attrs, e.Attrs)
	}
}

func TestRecords_DecodeError(t *testing.T) {
	data := testutil.EncodeGRIB("f.grib", 2, 0, sample()...)
	boom := errors.New("boom")
	calls := 0
	dec := grib.DecoderFunc(func(msg []byte) (grib.Record, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return testutil.Decoder{}.Decode(msg)
	})

	_, err := index.Build(context.Background(), "f.grib",
		grib.Records(context.Background(), bytes.NewReader(data), int64(len(data)), dec))
	require.ErrorIs(t, err, boom)

	var de *grib.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Positive(t, de.Offset)

	var be *index.BuildError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "f.grib", be.Resource)
}
