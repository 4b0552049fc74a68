package metamodel

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanpama/virtugraph/internal/gqlpath"
	"github.com/hanpama/virtugraph/internal/language"
	"github.com/hanpama/virtugraph/internal/svcerr"
)

const showsSDL = `
extend type Query { shows(first: Int): [Show] }

interface Show @subtyping(strategy: FIELD_NAME) {
  title: String
  rating: Float
  similar: [Show]
}

type Movie implements Show {
  title: String
  rating: Float
  similar: [Show]
  runtime: Int
}

type TVShow implements Show {
  title: String
  rating: Float
  similar: [Show]
  numberOfSeasons: Int
}
`

func catalog() *DataElementFunc {
	return NewDataElementFunc("catalog", "shows", showsSDL, func(context.Context, DataElementRequest) (any, error) {
		return []any{}, nil
	})
}

func TestCompose(t *testing.T) {
	created := time.Unix(1700000000, 0)
	m, err := Compose([]Source{catalog()}, WithCreated(created))
	require.NoError(t, err)
	require.Equal(t, created, m.Created())
	require.NotNil(t, m.Schema().Types["TVShow"])
	require.Len(t, m.Sources(), 1)
	require.Same(t, m.Source("catalog"), m.Sources()[0])

	shows := gqlpath.Root().Field("shows")
	v, ok := m.Vertex(shows.Field("title"))
	require.True(t, ok)
	require.Equal(t, "Show", v.ParentType)
	require.Equal(t, "catalog", v.Source)

	v, ok = m.Vertex(shows.Field("similar"))
	require.True(t, ok)
	require.True(t, v.Truncated)
	require.False(t, m.Graph().HasVertex(shows.Field("similar").Field("title")))

	v, ok = m.Vertex(shows.InlineFragment("TVShow").Field("numberOfSeasons"))
	require.True(t, ok)
	require.Equal(t, "TVShow", v.ParentType)

	e, ok := m.Graph().Edge(shows.Argument("first"), shows)
	require.True(t, ok)
	require.Equal(t, SchemaEdgeArgument, e.Label)

	def, ok := m.FieldDefinition(shows)
	require.True(t, ok)
	require.Equal(t, "Show", def.Type.Name())
	_, ok = m.FieldDefinition(shows.Argument("first"))
	require.False(t, ok)
}

func TestComposePrintsBuiltins(t *testing.T) {
	m, err := Compose([]Source{catalog()})
	require.NoError(t, err)
	sdl := language.FormatSchema(m.Schema())
	require.True(t, strings.Contains(sdl, "directive @subtyping"), sdl)
	require.True(t, strings.Contains(sdl, "numberOfSeasons"), sdl)
}

func TestComposeRejectsConflicts(t *testing.T) {
	_, err := Compose([]Source{catalog(), catalog()})
	require.ErrorContains(t, err, "duplicate source")

	other := NewDataElementFunc("mirror", "shows", showsSDL, nil)
	_, err = Compose([]Source{catalog(), other})
	require.ErrorContains(t, err, "both claim Query.shows")

	missing := NewDataElementFunc("missing", "films", showsSDL, nil)
	_, err = Compose([]Source{missing})
	require.Error(t, err)

	_, err = Compose([]Source{NewDataElementFunc("broken", "x", `extend type Query { x: Nope }`, nil)})
	require.ErrorContains(t, err, "load schema")
}

func TestPathsForColumn(t *testing.T) {
	m, err := Compose([]Source{catalog()})
	require.NoError(t, err)

	shows := gqlpath.Root().Field("shows")
	require.Equal(t, []gqlpath.Path{shows.Field("title")}, m.PathsForColumn("title"))
	require.Equal(t, []gqlpath.Path{shows.Field("title")}, m.PathsForColumn("shows.title"))
	require.Equal(t, []gqlpath.Path{shows.InlineFragment("TVShow").Field("numberOfSeasons")}, m.PathsForColumn("numberOfSeasons"))
	require.Empty(t, m.PathsForColumn("nope"))
}

func TestDomainOfAndSchemaPath(t *testing.T) {
	m, err := Compose([]Source{catalog()})
	require.NoError(t, err)

	p := gqlpath.Root().AliasedField("s", "shows").FragmentSpread("Seasons").Field("numberOfSeasons")
	src, domain, ok := m.DomainOf(p)
	require.True(t, ok)
	require.Equal(t, "catalog", src.Name())
	require.Equal(t, gqlpath.Root().AliasedField("s", "shows"), domain)

	got := m.SchemaPath(p, map[string]string{"Seasons": "TVShow"})
	require.Equal(t, gqlpath.Root().Field("shows").InlineFragment("TVShow").Field("numberOfSeasons"), got)

	// fragments on the interface itself vanish
	got = m.SchemaPath(gqlpath.Root().Field("shows").InlineFragment("Show").Field("title"), nil)
	require.Equal(t, gqlpath.Root().Field("shows").Field("title"), got)

	_, _, ok = m.DomainOf(gqlpath.Root().Field("films"))
	require.False(t, ok)
}

func TestDataElementCallableBuilder(t *testing.T) {
	shows := gqlpath.Root().Field("shows")
	var got DataElementRequest
	src := NewDataElementFunc("catalog", "shows", showsSDL, func(_ context.Context, req DataElementRequest) (any, error) {
		got = req
		return "ok", nil
	})

	b := NewDataElementCallableBuilder(src, shows)
	b2 := b.WithSelection(shows.Field("title")).WithArgument(shows.Argument("first"), nil)
	require.Empty(t, b.Selections())

	c, err := b2.Build()
	require.NoError(t, err)
	require.Equal(t, shows, c.Path())
	require.Equal(t, []gqlpath.Path{shows.Argument("first")}, c.Inputs())

	out, err := c.Invoke(context.Background(), map[gqlpath.Path]any{shows.Argument("first"): 2})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, []gqlpath.Path{shows.Field("title")}, got.Selections)
	require.Equal(t, 2, got.Arguments[shows.Argument("first")].Value)

	_, err = b2.WithSelection(gqlpath.Root().Field("films")).Build()
	requireKind(t, svcerr.KindBadRequest, err)

	_, err = NewDataElementCallableBuilder(src, gqlpath.Root()).Build()
	requireKind(t, svcerr.KindBadRequest, err)

	tf := NewTransformerFunc("text", "text", "", nil)
	_, err = NewDataElementCallableBuilder(tf, shows).Build()
	requireKind(t, svcerr.KindInternal, err)
}

func TestFeatureCallableRekeysDependencies(t *testing.T) {
	rating := gqlpath.Root().Field("shows").Field("rating")
	aliased := gqlpath.Root().Field("shows").AliasedField("r", "rating")
	src := NewFeatureFunc("stats", "stats", "", map[string]Feature{
		"avg": {
			Dependencies: []gqlpath.Path{rating},
			Compute: func(_ context.Context, args map[string]any, deps map[gqlpath.Path]any) (any, error) {
				return []any{args["scale"], deps[rating]}, nil
			},
		},
	})
	p := gqlpath.Root().Field("stats").Field("avg")
	c, err := NewFeatureCalculatorCallable(src, p, "avg",
		map[gqlpath.Path]string{p.Argument("scale"): "scale"},
		map[gqlpath.Path]gqlpath.Path{aliased: rating})
	require.NoError(t, err)
	require.Equal(t, []gqlpath.Path{aliased, p.Argument("scale")}, c.Inputs())

	out, err := c.Invoke(context.Background(), map[gqlpath.Path]any{p.Argument("scale"): 10, aliased: []any{1.0}})
	require.NoError(t, err)
	require.Equal(t, []any{10, []any{1.0}}, out)

	_, err = NewFeatureCalculatorCallable(src, p, "nope", nil, nil)
	requireKind(t, svcerr.KindNotFound, err)
}

func requireKind(t *testing.T, kind svcerr.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, svcerr.FromError(err, svcerr.KindInternal).Kind())
}
