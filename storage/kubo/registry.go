package kubo

import (
	"flag"
	"os"

	"xdao.co/depot/storage/registry"
)

var (
	flagKuboBin  string
	flagKuboRepo string
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "kubo",
		Description: "Kubo CLI store (local IPFS repo; content only, no aliases)",
		Usage:       registry.UsageCLI,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagKuboBin, "kubo-bin", "", "Path to the ipfs binary (for --backend=kubo)")
			fs.StringVar(&flagKuboRepo, "kubo-repo", "", "IPFS repo path; overrides IPFS_PATH (for --backend=kubo)")
		},
		Open: func() (registry.Providers, func() error, error) {
			opts := Options{Bin: flagKuboBin}
			if flagKuboRepo != "" {
				opts.Env = append(os.Environ(), "IPFS_PATH="+flagKuboRepo)
			}
			return registry.Providers{Content: New(opts)}, nil, nil
		},
	})
}
