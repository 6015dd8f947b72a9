// Package config loads and validates the TOML configuration, and
// resolves it into the endpoint.Spec/route.Worker wiring the rest of
// the program needs.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

// Endpoint is one endpoint's declarative configuration.
type Endpoint struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Type      string `toml:"type"`      // "tunnel" | "direct"
	Direction string `toml:"direction"` // "inbound" | "outbound"
	Secret    string `toml:"secret"`

	// MaxInFlight and AcceptRate* are optional inbound-only throttles; see
	// endpoint.Spec for what each does. A zero MaxInFlight or
	// AcceptRatePerSecond disables that throttle; a zero AcceptBurst is
	// treated as 1.
	MaxInFlight         int     `toml:"max_in_flight"`
	AcceptRatePerSecond float64 `toml:"accept_rate_per_second"`
	AcceptBurst         int     `toml:"accept_burst"`
}

// Route pairs two endpoint names and how many workers relay between them.
type Route struct {
	Endpoints [2]string `toml:"endpoints"`
	Size      int       `toml:"size"`
}

// Config is the top-level shape of a veloxid.toml file.
type Config struct {
	LogLevel  int                 `toml:"log_level"`
	Routes    []Route             `toml:"routes"`
	Endpoints map[string]Endpoint `toml:"endpoints"`
}

// Config-time errors, fatal at startup.
var (
	ErrNoSecret         = fmt.Errorf("config: tunnel-mode endpoint has no secret")
	ErrRouteToSelf      = fmt.Errorf("config: route references the same endpoint twice")
	ErrEndpointNotFound = fmt.Errorf("config: route references an undefined endpoint")
	ErrNoOutboundHost   = fmt.Errorf("config: outbound endpoint has no host")
)

// Load reads and parses a TOML file at path, then applies the
// VELOXID_SECRET_<ENDPOINT> environment overlay before returning. It
// does not validate the result — call Validate separately.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverlay(os.Environ())
	return &cfg, nil
}

var nonAlnum = regexp.MustCompile(`[^A-Za-z0-9]+`)

func envSecretKey(endpointName string) string {
	normalized := nonAlnum.ReplaceAllString(endpointName, "_")
	return "VELOXID_SECRET_" + strings.ToUpper(normalized)
}

func (c *Config) applyEnvOverlay(environ []string) {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	for name, ep := range c.Endpoints {
		if v, ok := env[envSecretKey(name)]; ok {
			ep.Secret = v
			c.Endpoints[name] = ep
		}
	}
}

// Validate checks a parsed Config for problems that should stop startup.
// It returns a list of non-fatal warnings (currently just unreferenced
// endpoints) and an error for anything fatal (NoSecret, RouteToSelf,
// EndpointNotFound, NoOutboundHost). NoSecret is checked for every
// endpoint, referenced or not, since every endpoint is bound at startup.
// The first fatal problem found is returned; callers
// that want every problem at once can loop calling Validate against
// progressively fixed configs.
func (c *Config) Validate() (warnings []string, err error) {
	referenced := make(map[string]bool, len(c.Endpoints))

	for _, r := range c.Routes {
		if r.Endpoints[0] == r.Endpoints[1] {
			return nil, fmt.Errorf("%w: %q", ErrRouteToSelf, r.Endpoints[0])
		}
		for _, name := range r.Endpoints {
			ep, ok := c.Endpoints[name]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrEndpointNotFound, name)
			}
			if ep.Type == "tunnel" && ep.Secret == "" {
				return nil, fmt.Errorf("%w: %q", ErrNoSecret, name)
			}
			if ep.Direction == "outbound" && ep.Host == "" {
				return nil, fmt.Errorf("%w: %q", ErrNoOutboundHost, name)
			}
			referenced[name] = true
		}
	}

	for name, ep := range c.Endpoints {
		if ep.Type == "tunnel" && ep.Secret == "" {
			return nil, fmt.Errorf("%w: %q", ErrNoSecret, name)
		}
		if !referenced[name] {
			warnings = append(warnings, fmt.Sprintf("endpoint %q is not referenced by any route", name))
		}
	}
	return warnings, nil
}
