// depot-grpcd serves a storage backend over the Store gRPC service.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"google.golang.org/grpc"

	"xdao.co/depot/storage/depotconfig"
	"xdao.co/depot/storage/grpcstore"
	"xdao.co/depot/storage/registry"

	_ "xdao.co/depot/storage/badgerstore"
	_ "xdao.co/depot/storage/localfs"
	_ "xdao.co/depot/storage/memory"
)

func main() {
	fs := flag.NewFlagSet("depot-grpcd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7077", "listen address")
	backend := fs.String("backend", "localfs", "storage backend name")
	configPath := fs.String("config", "", "JSON backend config file; overrides --backend")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")

	registry.RegisterFlags(fs, registry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range registry.List(registry.UsageDaemon) {
			if b.Description == "" {
				fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	log := newLogger(*logLevel)

	var (
		providers   registry.Providers
		closeFn     func() error
		err         error
		backendDesc = *backend
	)
	if *configPath != "" {
		var cfg depotconfig.Config
		cfg, err = depotconfig.LoadFile(*configPath)
		if err == nil {
			backendDesc = cfg.Describe()
			providers, closeFn, err = cfg.Open(registry.UsageDaemon, log)
		}
	} else {
		providers, closeFn, err = registry.Open(*backend, registry.UsageDaemon)
	}
	if err != nil {
		log.Error("opening backend", "error", err)
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", "address", *listen, "error", err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcstore.RegisterStoreServer(s, &grpcstore.Server{
		Content: providers.Content,
		Aliases: providers.Aliases,
	})

	log.Info("listening", "address", lis.Addr().String(), "backend", backendDesc)
	if err := s.Serve(lis); err != nil {
		log.Error("serve", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
