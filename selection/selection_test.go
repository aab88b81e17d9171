package selection

import (
	"strings"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("shapes", func(t *testing.T) {
		sel, err := Normalize(map[string]any{
			"param":  []string{"t", "z"},
			"level":  500,
			"step":   []any{0, 6.0, "12"},
			"number": nil,
			"class":  ALL,
			"stream": mapset.NewSet("oper", "enfo"),
			"date":   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			"expver": func(s string) bool { return strings.HasPrefix(s, "0") },
			"fixed":  [2]int{1, 2},
		})
		require.NoError(t, err)

		assert.Equal(t, List, sel["param"].Kind())
		assert.Equal(t, []string{"t", "z"}, sel["param"].Values())
		assert.Equal(t, Scalar, sel["level"].Kind())
		assert.Equal(t, []string{"500"}, sel["level"].Values())
		assert.Equal(t, []string{"0", "6", "12"}, sel["step"].Values())
		assert.Equal(t, Unset, sel["number"].Kind())
		assert.Equal(t, All, sel["class"].Kind())
		assert.Equal(t, []string{"enfo", "oper"}, sel["stream"].Values())
		assert.Equal(t, []string{"2024-01-02 00:00:00"}, sel["date"].Values())
		assert.Equal(t, Predicate, sel["expver"].Kind())
		assert.Equal(t, []string{"1", "2"}, sel["fixed"].Values())
	})

	t.Run("later maps win", func(t *testing.T) {
		sel, err := Normalize(
			map[string]any{"param": "t", "level": 500},
			map[string]any{"param": "z"},
		)
		require.NoError(t, err)
		assert.Equal(t, []string{"z"}, sel["param"].Values())
		assert.Equal(t, []string{"500"}, sel["level"].Values())
	})

	t.Run("invalid shape", func(t *testing.T) {
		_, err := Normalize(map[string]any{"param": map[string]int{"t": 1}})
		var ise *InvalidSelectionError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "param", ise.Key)

		_, err = Normalize(map[string]any{"param": []any{"t", struct{}{}}})
		require.ErrorAs(t, err, &ise)
	})

	t.Run("typed sets", func(t *testing.T) {
		sel, err := Normalize(map[string]any{
			"level": mapset.NewSet(850, 500, 1000),
			"step":  mapset.NewThreadUnsafeSet(6.0, 0.0),
		})
		require.NoError(t, err)
		assert.Equal(t, List, sel["level"].Kind())
		assert.Equal(t, []string{"500", "850", "1000"}, sel["level"].Values())
		assert.Equal(t, []string{"0", "6"}, sel["step"].Values())
		assert.True(t, sel.Match(map[string]string{"level": "850", "step": "6"}))
	})

	t.Run("stringers are not scalars", func(t *testing.T) {
		_, err := Normalize(map[string]any{"level": labelled{"850"}})
		var ise *InvalidSelectionError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "level", ise.Key)

		_, err = Normalize(map[string]any{"level": []any{500, labelled{"850"}}})
		require.ErrorAs(t, err, &ise)
	})
}

type labelled struct{ name string }

func (l labelled) String() string { return l.name }

func TestFormatScalar(t *testing.T) {
	for in, want := range map[any]string{
		500:        "500",
		500.0:      "500",
		float32(2): "2",
		0.25:       "0.25",
		uint8(7):   "7",
		true:       "true",
		"abc":      "abc",
	} {
		got, ok := FormatScalar(in)
		require.True(t, ok, "%v", in)
		assert.Equal(t, want, got)
	}
	_, ok := FormatScalar([]int{1})
	assert.False(t, ok)
}

func TestSelection_Match(t *testing.T) {
	sel := MustNormalize(map[string]any{
		"param": []string{"t", "z"},
		"level": 500,
		"class": ALL,
	})
	assert.True(t, sel.Match(map[string]string{"param": "t", "level": "500"}))
	assert.False(t, sel.Match(map[string]string{"param": "q", "level": "500"}))
	assert.False(t, sel.Match(map[string]string{"param": "t"}))
	assert.Equal(t, []string{"level", "param"}, sel.Constrained())
	assert.True(t, Selection{}.Match(nil))
	assert.True(t, MustNormalize(map[string]any{"x": nil}).Empty())
}

func TestMerge(t *testing.T) {
	existing := MustNormalize(map[string]any{
		"param": []string{"t", "z", "q"},
		"level": ALL,
	})
	constraints := MustNormalize(map[string]any{
		"param": []string{"q", "t", "u"},
		"level": []int{850, 500},
		"step":  6,
	})

	once := Merge(existing, constraints)
	assert.Equal(t, []string{"t", "q"}, once["param"].Values())
	assert.Equal(t, []string{"850", "500"}, once["level"].Values())
	assert.Equal(t, []string{"6"}, once["step"].Values())

	t.Run("idempotent", func(t *testing.T) {
		twice := Merge(once, constraints)
		assert.Equal(t, once.String(), twice.String())
		for _, k := range once.Constrained() {
			assert.Equal(t, once[k].Values(), twice[k].Values(), k)
		}
	})

	t.Run("scalar stays scalar", func(t *testing.T) {
		assert.Equal(t, Scalar, once["step"].Kind())
		assert.Equal(t, Scalar, Merge(once, constraints)["step"].Kind())
		got := Merge(MustNormalize(map[string]any{"level": 500}), MustNormalize(map[string]any{
			"level": func(s string) bool { return s == "500" },
		}))
		assert.Equal(t, Scalar, got["level"].Kind())
		assert.Equal(t, "{level=500}", got.String())
	})

	t.Run("unset keeps existing", func(t *testing.T) {
		got := Merge(existing, MustNormalize(map[string]any{"param": nil}))
		assert.Equal(t, []string{"t", "z", "q"}, got["param"].Values())
	})

	t.Run("disjoint selects nothing", func(t *testing.T) {
		got := Merge(existing, MustNormalize(map[string]any{"param": "w"}))
		assert.Empty(t, got["param"].Values())
		assert.False(t, got.Match(map[string]string{"param": "w"}))
		assert.False(t, got.Match(map[string]string{"param": "t"}))
	})

	t.Run("predicate filters list", func(t *testing.T) {
		got := Merge(existing, MustNormalize(map[string]any{
			"param": func(s string) bool { return s != "z" },
		}))
		assert.Equal(t, []string{"t", "q"}, got["param"].Values())
	})
}

func TestRename(t *testing.T) {
	sel := MustNormalize(map[string]any{"variable": []string{"t", "z"}, "param": "t"})
	got := sel.Rename(map[string]string{"variable": "param"})
	require.Len(t, got, 1)
	assert.Equal(t, []string{"t"}, got["param"].Values())
}

func TestParseArgs(t *testing.T) {
	m, err := ParseArgs([]string{"param=t/z", "level=500", "class=*"})
	require.NoError(t, err)
	sel, err := Normalize(m)
	require.NoError(t, err)
	assert.Equal(t, []string{"t", "z"}, sel["param"].Values())
	assert.Equal(t, []string{"500"}, sel["level"].Values())
	assert.Equal(t, All, sel["class"].Kind())

	_, err = ParseArgs([]string{"novalue"})
	require.Error(t, err)
}
