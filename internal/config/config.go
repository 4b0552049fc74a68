// Package config loads the gateway configuration file.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hanpama/virtugraph/internal/metamodel"
	"github.com/hanpama/virtugraph/internal/remote"
)

const (
	DefaultAddr            = ":8080"
	DefaultCallableTimeout = 3 * time.Second
	DefaultCacheTTL        = 10 * time.Minute
	DefaultMemoSize        = 4096
	DefaultMemoTTL         = time.Minute
	DefaultServiceName     = "virtugraph"
)

// Config is the gateway file.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Cache     CacheConfig     `yaml:"cache,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
	// Sources lists the remote GraphQL services composed into the schema.
	Sources []SourceConfig `yaml:"sources"`

	dir string
}

type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
	// CallableTimeout bounds every callable of a request.
	CallableTimeout time.Duration `yaml:"callable_timeout,omitempty"`
	// Concurrency caps callables running at once per request; 0 means no cap.
	Concurrency int `yaml:"concurrency,omitempty"`
}

type CacheConfig struct {
	// TTL is how long parsed documents are kept.
	TTL      time.Duration `yaml:"ttl,omitempty"`
	MemoSize int           `yaml:"memo_size,omitempty"`
	MemoTTL  time.Duration `yaml:"memo_ttl,omitempty"`
}

type TelemetryConfig struct {
	// OTLPEndpoint enables tracing when set.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name,omitempty"`
}

// SourceConfig describes one remote GraphQL source. Exactly one of SDL and
// SDLFile is set; SDLFile is relative to the config file.
type SourceConfig struct {
	Name      string            `yaml:"name"`
	Domain    string            `yaml:"domain"`
	Endpoints StringList        `yaml:"endpoint"`
	SDL       string            `yaml:"sdl,omitempty"`
	SDLFile   string            `yaml:"sdl_file,omitempty"`
	Timeout   time.Duration     `yaml:"timeout,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// StringList is a YAML type that can be either a string or a list of strings.
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = []string{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	return Parse(data, filepath.Dir(path))
}

// Parse decodes a config document. dir resolves relative SDL files.
func Parse(data []byte, dir string) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.dir = dir
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.CallableTimeout == 0 {
		c.Server.CallableTimeout = DefaultCallableTimeout
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MemoSize == 0 {
		c.Cache.MemoSize = DefaultMemoSize
	}
	if c.Cache.MemoTTL == 0 {
		c.Cache.MemoTTL = DefaultMemoTTL
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = DefaultServiceName
	}
	for i := range c.Sources {
		if c.Sources[i].Timeout == 0 {
			c.Sources[i].Timeout = c.Server.CallableTimeout
		}
	}
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for i, s := range c.Sources {
		switch {
		case s.Name == "":
			return errors.Errorf("sources[%d]: name is required", i)
		case seen[s.Name]:
			return errors.Errorf("sources[%d]: duplicate source %q", i, s.Name)
		case s.Domain == "":
			return errors.Errorf("source %s: domain is required", s.Name)
		case len(s.Endpoints) == 0:
			return errors.Errorf("source %s: endpoint is required", s.Name)
		case (s.SDL == "") == (s.SDLFile == ""):
			return errors.Errorf("source %s: exactly one of sdl and sdl_file is required", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Server.Concurrency < 0 {
		return errors.New("server.concurrency must not be negative")
	}
	return nil
}

// RemoteSources builds the configured sources, reading SDL files.
func (c *Config) RemoteSources() ([]metamodel.Source, error) {
	out := make([]metamodel.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		sdl := s.SDL
		if s.SDLFile != "" {
			p := s.SDLFile
			if !filepath.IsAbs(p) {
				p = filepath.Join(c.dir, p)
			}
			b, err := os.ReadFile(p)
			if err != nil {
				return nil, errors.Wrapf(err, "source %s", s.Name)
			}
			sdl = string(b)
		}
		opts := []remote.Option{remote.WithEndpoints(s.Endpoints...), remote.WithTimeout(s.Timeout)}
		for k, v := range s.Headers {
			opts = append(opts, remote.WithHeader(k, v))
		}
		out = append(out, remote.New(s.Name, s.Domain, sdl, opts...))
	}
	return out, nil
}
