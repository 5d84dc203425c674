package localfs

import (
	"flag"
	"fmt"

	"xdao.co/depot/storage/registry"
)

var (
	flagLocalDir string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "localfs",
		Description: "Local filesystem store (directory)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagLocalDir, "localfs-dir", "", "Local store directory (for --backend=localfs)")
		},
		Open: func() (registry.Providers, func() error, error) {
			if flagLocalDir == "" {
				return registry.Providers{}, nil, fmt.Errorf("missing --localfs-dir")
			}
			content, err := New(flagLocalDir)
			if err != nil {
				return registry.Providers{}, nil, err
			}
			aliases, err := NewAliases(flagLocalDir)
			if err != nil {
				return registry.Providers{}, nil, err
			}
			return registry.Providers{Content: content, Aliases: aliases}, nil, nil
		},
	})
}
