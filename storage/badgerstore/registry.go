package badgerstore

import (
	"flag"
	"fmt"

	"xdao.co/depot/storage/registry"
)

var (
	flagBadgerDir      string
	flagBadgerInMemory bool
)

func init() {
	registry.MustRegister(registry.Backend{
		Name:        "badger",
		Description: "Badger key-value store (embedded)",
		Usage:       registry.UsageCLI | registry.UsageDaemon,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagBadgerDir, "badger-dir", "", "Badger database directory (for --backend=badger)")
			fs.BoolVar(&flagBadgerInMemory, "badger-in-memory", false, "Keep the Badger database in memory (for --backend=badger)")
		},
		Open: func() (registry.Providers, func() error, error) {
			var (
				db  *DB
				err error
			)
			switch {
			case flagBadgerInMemory:
				db, err = OpenInMemory()
			case flagBadgerDir != "":
				db, err = Open(flagBadgerDir)
			default:
				return registry.Providers{}, nil, fmt.Errorf("missing --badger-dir")
			}
			if err != nil {
				return registry.Providers{}, nil, err
			}
			return registry.Providers{Content: db.Content(), Aliases: db.Aliases()}, db.Close, nil
		},
	})
}
