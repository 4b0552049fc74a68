package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.graphql"), []byte(`
extend type Query { shows: [Show] }
type Show { title: String }
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gateway.yaml"), []byte(`
server:
  addr: ":9000"
  concurrency: 8
cache:
  ttl: 1m
sources:
  - name: catalog
    domain: shows
    endpoint: http://catalog/graphql
    sdl_file: catalog.graphql
    headers:
      X-Api-Key: token
  - name: people
    domain: people
    endpoint: [http://people-1/graphql, http://people-2/graphql]
    timeout: 500ms
    sdl: |
      extend type Query { people: [String] }
`), 0o644))

	cfg, err := Load(filepath.Join(dir, "gateway.yaml"))
	require.NoError(t, err)

	want := &Config{
		Server: ServerConfig{Addr: ":9000", CallableTimeout: DefaultCallableTimeout, Concurrency: 8},
		Cache:  CacheConfig{TTL: time.Minute, MemoSize: DefaultMemoSize, MemoTTL: DefaultMemoTTL},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Sources: []SourceConfig{
			{
				Name:      "catalog",
				Domain:    "shows",
				Endpoints: StringList{"http://catalog/graphql"},
				SDLFile:   "catalog.graphql",
				Timeout:   DefaultCallableTimeout,
				Headers:   map[string]string{"X-Api-Key": "token"},
			},
			{
				Name:      "people",
				Domain:    "people",
				Endpoints: StringList{"http://people-1/graphql", "http://people-2/graphql"},
				SDL:       "extend type Query { people: [String] }\n",
				Timeout:   500 * time.Millisecond,
			},
		},
	}
	if diff := cmp.Diff(want, cfg, cmpopts.IgnoreUnexported(Config{})); diff != "" {
		t.Fatalf("Config mismatch (-want +got):\n%s", diff)
	}

	sources, err := cfg.RemoteSources()
	require.NoError(t, err)
	require.Len(t, sources, 2)
	require.Contains(t, sources[0].SDL(), "type Show")
	require.Equal(t, "people", sources[1].DomainField())
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil, ".")
	require.NoError(t, err)
	require.Equal(t, DefaultAddr, cfg.Server.Addr)
	require.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	require.Empty(t, cfg.Sources)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown field":  "server: {port: 1}",
		"missing domain": "sources: [{name: a, endpoint: x, sdl: s}]",
		"both sdl":       "sources: [{name: a, domain: a, endpoint: x, sdl: s, sdl_file: f}]",
		"duplicate": `sources:
  - {name: a, domain: a, endpoint: x, sdl: s}
  - {name: a, domain: b, endpoint: x, sdl: s}`,
		"no endpoint": "sources: [{name: a, domain: a, sdl: s}]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), ".")
			require.Error(t, err)
		})
	}
}
