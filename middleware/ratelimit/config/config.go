// Package config lê o arquivo YAML com as estratégias de admissão por
// endpoint e os parâmetros do gate global.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/application"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DefaultQPS        = 1000
	DefaultGlobalQPS  = 50000
	DefaultIPCapacity = 10000
	DefaultIPIdle     = time.Hour
)

var (
	ErrEmptyEndpoint     = errors.New("endpoint is required")
	ErrDuplicateEndpoint = errors.New("duplicate endpoint")
	ErrInvalidQPS        = errors.New("qps must be > 0")
	ErrInvalidPath       = errors.New("path must begin with '/'")
	ErrDuplicatePath     = errors.New("duplicate path")
)

type Config struct {
	DefaultQPS float64 `yaml:"default_qps"`
	Global     Global  `yaml:"global"`
	HTTP       []Rule  `yaml:"http"`
	RPC        []Rule  `yaml:"rpc"`
}

// Global descreve o teto de vazão do processo.
type Global struct {
	QPS            float64       `yaml:"qps"`
	IPQPS          float64       `yaml:"ip_qps"`
	IPCapacity     int           `yaml:"ip_capacity"`
	IPIdle         time.Duration `yaml:"ip_idle"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

// Rule liga um endpoint a uma estratégia. Paths só é usado pelo gateway HTTP
// para mapear rotas no endpoint.
type Rule struct {
	Endpoint string   `yaml:"endpoint"`
	Strategy string   `yaml:"strategy"`
	Params   string   `yaml:"params"`
	Paths    []string `yaml:"paths,omitempty"`
}

func Default() Config {
	return Config{
		DefaultQPS: DefaultQPS,
		Global: Global{
			QPS:        DefaultGlobalQPS,
			IPCapacity: DefaultIPCapacity,
			IPIdle:     DefaultIPIdle,
		},
	}
}

// Load lê e valida o arquivo. Referências ${VAR} são expandidas do ambiente.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open rate limit config: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodifica sobre Default(); campos desconhecidos são erro.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("read rate limit config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(raw)))))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode rate limit config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reporta todos os problemas de uma vez. Nome de estratégia
// desconhecido não é erro aqui: o registro cai no default.
func (c Config) Validate() error {
	var err error
	if c.DefaultQPS <= 0 {
		err = multierr.Append(err, fmt.Errorf("default_qps: %w", ErrInvalidQPS))
	}
	if c.Global.QPS <= 0 {
		err = multierr.Append(err, fmt.Errorf("global.qps: %w", ErrInvalidQPS))
	}
	if c.Global.IPQPS < 0 {
		err = multierr.Append(err, fmt.Errorf("global.ip_qps: must be >= 0, got %v", c.Global.IPQPS))
	}
	if c.Global.IPQPS > 0 && c.Global.IPCapacity <= 0 {
		err = multierr.Append(err, fmt.Errorf("global.ip_capacity: must be > 0, got %d", c.Global.IPCapacity))
	}
	if c.Global.AcquireTimeout < 0 {
		err = multierr.Append(err, fmt.Errorf("global.acquire_timeout: must be >= 0, got %s", c.Global.AcquireTimeout))
	}
	err = multierr.Append(err, validateRules("http", c.HTTP))
	err = multierr.Append(err, validateRules("rpc", c.RPC))
	return err
}

func validateRules(section string, rules []Rule) error {
	var err error
	seen := make(map[string]struct{}, len(rules))
	paths := make(map[string]string)
	for i, r := range rules {
		name := strings.TrimSpace(r.Endpoint)
		if name == "" {
			err = multierr.Append(err, fmt.Errorf("%s[%d]: %w", section, i, ErrEmptyEndpoint))
		} else if _, ok := seen[name]; ok {
			err = multierr.Append(err, fmt.Errorf("%s[%d]: %w: %q", section, i, ErrDuplicateEndpoint, name))
		} else {
			seen[name] = struct{}{}
		}

		for _, p := range r.Paths {
			if !strings.HasPrefix(p, "/") {
				err = multierr.Append(err, fmt.Errorf("%s[%d].paths: %w: %q", section, i, ErrInvalidPath, p))
				continue
			}
			if owner, ok := paths[p]; ok {
				err = multierr.Append(err, fmt.Errorf("%s[%d].paths: %w: %q already mapped to %q", section, i, ErrDuplicatePath, p, owner))
				continue
			}
			paths[p] = name
		}
	}
	return err
}

func (c Config) HTTPRules() []application.EndpointRule { return toEndpointRules(c.HTTP) }
func (c Config) RPCRules() []application.EndpointRule  { return toEndpointRules(c.RPC) }

func toEndpointRules(rules []Rule) []application.EndpointRule {
	out := make([]application.EndpointRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, application.EndpointRule{
			Endpoint: strings.TrimSpace(r.Endpoint),
			Strategy: r.Strategy,
			Params:   r.Params,
		})
	}
	return out
}
