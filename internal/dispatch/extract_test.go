package dispatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/gqlpath"
)

func TestExtract(t *testing.T) {
	shows := gqlpath.Root().Field("shows")
	value := []any{
		map[string]any{"__typename": "Movie", "title": "A", "cast": []any{map[string]any{"n": "x"}, map[string]any{"n": "y"}}},
		map[string]any{"__typename": "TVShow", "title": "B", "seasons": 3, "cast": []any{}},
		nil,
	}

	tests := []struct {
		name   string
		target gqlpath.Path
		want   any
	}{
		{"self", shows, value},
		{"list of leaves", shows.Field("title"), []any{"A", "B"}},
		{"nested lists flatten", shows.Field("cast").Field("n"), []any{"x", "y"}},
		{"fragment filters by typename", shows.InlineFragment("TVShow").Field("seasons"), []any{3}},
		{"spread passes through", shows.FragmentSpread("F").Field("title"), []any{"A", "B"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(value, shows, tt.target)
			require.True(t, ok)
			require.Equal(t, tt.want, got)
		})
	}

	_, ok := Extract(value, shows, gqlpath.Root().Field("films"))
	require.False(t, ok)
}

func TestExtractObject(t *testing.T) {
	detail := gqlpath.Root().Field("detail")
	value := map[string]any{"t": "A", "inner": nil}

	got, ok := Extract(value, detail, detail.AliasedField("t", "title"))
	require.True(t, ok)
	require.Equal(t, "A", got)

	got, ok = Extract(value, detail, detail.Field("inner").Field("x"))
	require.True(t, ok)
	require.Nil(t, got)
}
