package memory

import (
	"flag"

	"xdao.co/depot/storage/registry"
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:          "memory",
		Description:   "In-memory store (ephemeral; for testing)",
		Usage:         registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {},
		Open: func() (registry.Providers, func() error, error) {
			return registry.Providers{Content: New(), Aliases: NewAliases()}, nil, nil
		},
	})
}
