// Package depotconfig opens storage backends from a JSON config file,
// composing a cache when both a remote and a local backend are given.
package depotconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"xdao.co/depot/storage/cache"
	"xdao.co/depot/storage/registry"
)

// Config describes how to open one or two storage backends via the
// registry.
//
// This provides "config-driven" runtime backend selection. Callers
// still need to link desired backend plugins via blank imports.
//
// With a single backend it is used directly. With two backends, one
// must carry role "remote" and one role "local"; they are composed
// into a cache: reads try local first and best-effort populate it
// from remote, writes go to remote first and best-effort mirror.
//
// Example:
//
//	{
//	  "backends": [
//	    {"name":"grpc", "role":"remote", "config":{"grpc-target":"depot.internal:7077"}},
//	    {"name":"localfs", "role":"local", "config":{"localfs-dir":"/var/cache/depot"}}
//	  ]
//	}
//
// Note: config values are backend-specific; keys mirror the backend's
// CLI flag names.
type Config struct {
	Backends []BackendConfig `json:"backends"`
}

type BackendConfig struct {
	// Name is the registry backend name to open (e.g. "grpc",
	// "localfs", "badger", "kubo").
	Name string `json:"name"`
	// Role is "remote" or "local" in a two-backend cache setup, and
	// empty for a single backend.
	Role   string            `json:"role,omitempty"`
	Config map[string]string `json:"config,omitempty"`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("depotconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch len(c.Backends) {
	case 0:
		return errors.New("depotconfig: at least one backend is required")
	case 1:
		b := c.Backends[0]
		if b.Name == "" {
			return errors.New("depotconfig: backend name is required")
		}
		if b.Role != "" {
			return fmt.Errorf("depotconfig: single backend must not carry role %q", b.Role)
		}
		return nil
	case 2:
		roles := map[string]string{}
		for _, b := range c.Backends {
			if b.Name == "" {
				return errors.New("depotconfig: backend name is required")
			}
			switch b.Role {
			case "remote", "local":
				if _, ok := roles[b.Role]; ok {
					return fmt.Errorf("depotconfig: duplicate role %q", b.Role)
				}
				roles[b.Role] = b.Name
			default:
				return fmt.Errorf("depotconfig: invalid role %q for backend %q", b.Role, b.Name)
			}
		}
		return nil
	default:
		return errors.New("depotconfig: at most two backends are supported")
	}
}

// Describe returns a short human-readable label for the configured
// backend selection, suitable for startup logs.
func (c Config) Describe() string {
	if len(c.Backends) == 1 {
		return c.Backends[0].Name
	}
	var remote, local string
	for _, b := range c.Backends {
		if b.Role == "remote" {
			remote = b.Name
		} else {
			local = b.Name
		}
	}
	return fmt.Sprintf("cache(remote=%s, local=%s)", remote, local)
}

// Open opens the configured backend, or a cache composite over the
// remote/local pair. log is used for the cache's best-effort mirror
// warnings; nil uses slog.Default.
func (c Config) Open(usage registry.Usage, log *slog.Logger) (registry.Providers, func() error, error) {
	if err := c.Validate(); err != nil {
		return registry.Providers{}, nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	if len(c.Backends) == 1 {
		b := c.Backends[0]
		return registry.OpenWithConfig(b.Name, usage, b.Config)
	}

	var remoteCfg, localCfg BackendConfig
	for _, b := range c.Backends {
		if b.Role == "remote" {
			remoteCfg = b
		} else {
			localCfg = b
		}
	}

	remote, closeRemote, err := registry.OpenWithConfig(remoteCfg.Name, usage, remoteCfg.Config)
	if err != nil {
		return registry.Providers{}, nil, err
	}
	local, closeLocal, err := registry.OpenWithConfig(localCfg.Name, usage, localCfg.Config)
	if err != nil {
		if closeRemote != nil {
			_ = closeRemote()
		}
		return registry.Providers{}, nil, err
	}

	closeAll := func() error {
		var firstErr error
		if closeLocal != nil {
			firstErr = closeLocal()
		}
		if closeRemote != nil {
			if err := closeRemote(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	composed := registry.Providers{
		Content: cache.New(remote.Content, local.Content, log),
	}
	// Aliases compose only when both sides have them; a one-sided
	// setup serves aliases from whichever side exists.
	switch {
	case remote.Aliases != nil && local.Aliases != nil:
		composed.Aliases = cache.NewAliases(remote.Aliases, local.Aliases, log)
	case remote.Aliases != nil:
		composed.Aliases = remote.Aliases
	case local.Aliases != nil:
		composed.Aliases = local.Aliases
	}
	return composed, closeAll, nil
}
