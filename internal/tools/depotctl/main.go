// depotctl is a minimal store tool for walkthroughs and operations.
//
// Identifiers are passed on the command line as the hex of their wire
// form, the same encoding bundle archives use for entry names.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"xdao.co/depot/ident"
	"xdao.co/depot/storage"
	"xdao.co/depot/storage/bundle"
	"xdao.co/depot/storage/registry"

	_ "xdao.co/depot/storage/badgerstore"
	_ "xdao.co/depot/storage/grpcstore"
	_ "xdao.co/depot/storage/kubo"
	_ "xdao.co/depot/storage/localfs"
	_ "xdao.co/depot/storage/memory"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "put":
		return cmdPut(args[1:], out, errOut)
	case "get":
		return cmdGet(args[1:], out, errOut)
	case "stat":
		return cmdStat(args[1:], out, errOut)
	case "del":
		return cmdDel(args[1:], out, errOut)
	case "resolve":
		return cmdResolve(args[1:], out, errOut)
	case "register":
		return cmdRegister(args[1:], out, errOut)
	case "pack":
		return cmdPack(args[1:], out, errOut)
	case "unpack":
		return cmdUnpack(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "depotctl: minimal store tool")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  depotctl put --backend localfs --localfs-dir <dir> <file>")
	fmt.Fprintln(w, "  depotctl get --backend localfs --localfs-dir <dir> --id <hex> [--out <file>]")
	fmt.Fprintln(w, "  depotctl stat --backend localfs --localfs-dir <dir> --id <hex>")
	fmt.Fprintln(w, "  depotctl del --backend localfs --localfs-dir <dir> --id <hex>")
	fmt.Fprintln(w, "  depotctl resolve --backend localfs --localfs-dir <dir> --key <name>")
	fmt.Fprintln(w, "  depotctl register --backend localfs --localfs-dir <dir> --key <name> --id <hex>")
	fmt.Fprintln(w, "  depotctl pack --backend localfs --localfs-dir <dir> --out <tar> <hex> [<hex> ...]")
	fmt.Fprintln(w, "  depotctl unpack --backend localfs --localfs-dir <dir> <tar>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - grpc backend talks to depot-grpcd (--grpc-target <host:port>)")
	fmt.Fprintln(w, "  - kubo backend shells out to the local Kubo 'ipfs' CLI")
	fmt.Fprintln(w, "  - identifiers are the hex of their wire form")
}

type commonFlags struct {
	backend      string
	listBackends bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.backend, "backend", "localfs", "storage backend name")
	fs.BoolVar(&c.listBackends, "list-backends", false, "List supported backends and exit")
	registry.RegisterFlags(fs, registry.UsageCLI)
}

func (c *commonFlags) open() (registry.Providers, func() error, error) {
	return registry.Open(c.backend, registry.UsageCLI)
}

func printBackends(w io.Writer) {
	for _, b := range registry.List(registry.UsageCLI) {
		if b.Description == "" {
			fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

func parseID(s string) (ident.Identifier, error) {
	wire, err := hex.DecodeString(s)
	if err != nil {
		return ident.Identifier{}, fmt.Errorf("%w: not hex", ident.ErrInvalidIdentifier)
	}
	id, rest, err := ident.Decode(wire)
	if err != nil {
		return ident.Identifier{}, err
	}
	if len(rest) != 0 {
		return ident.Identifier{}, fmt.Errorf("%w: trailing bytes", ident.ErrInvalidIdentifier)
	}
	return id, nil
}

func formatID(id ident.Identifier) string {
	return hex.EncodeToString(id.AppendWire(nil))
}

func cmdPut(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("put", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: depotctl put [common flags] <file>")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	p := fs.Arg(0)
	b, err := os.ReadFile(p)
	if err != nil {
		fmt.Fprintf(errOut, "read %s: %v\n", filepath.Base(p), err)
		return 1
	}
	id, err := storage.WriteBlob(context.Background(), providers.Content, b)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, formatID(id))
	return 0
}

func cmdGet(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var idStr, outPath string
	fs.StringVar(&idStr, "id", "", "Identifier to fetch (hex wire form)")
	fs.StringVar(&outPath, "out", "", "Output file (optional; default stdout)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if idStr == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(errOut, "usage: depotctl get [common flags] --id <hex> [--out <file>]")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, err := parseID(idStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	b, err := storage.ReadBlob(context.Background(), providers.Content, id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}

	if outPath == "" {
		_, _ = out.Write(b)
		return 0
	}
	if err := os.WriteFile(outPath, b, 0o600); err != nil {
		fmt.Fprintf(errOut, "write %s: %v\n", outPath, err)
		return 1
	}
	return 0
}

func cmdStat(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("stat", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var idStr string
	fs.StringVar(&idStr, "id", "", "Identifier to probe (hex wire form)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if idStr == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, err := parseID(idStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	size, err := providers.Content.Stat(context.Background(), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, size)
	return 0
}

func cmdDel(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("del", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var idStr string
	fs.StringVar(&idStr, "id", "", "Identifier to delete (hex wire form)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if idStr == "" {
		fmt.Fprintln(errOut, "missing --id")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	id, err := parseID(idStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := providers.Content.Delete(context.Background(), id); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdResolve(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("resolve", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var key string
	fs.StringVar(&key, "key", "", "Alias key")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if key == "" {
		fmt.Fprintln(errOut, "missing --key")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if providers.Aliases == nil {
		fmt.Fprintf(errOut, "backend %q has no alias support\n", common.backend)
		return 1
	}

	id, err := providers.Aliases.Resolve(context.Background(), []byte(key))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, formatID(id))
	return 0
}

func cmdRegister(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var key, idStr string
	fs.StringVar(&key, "key", "", "Alias key")
	fs.StringVar(&idStr, "id", "", "Identifier to register (hex wire form)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if key == "" || idStr == "" {
		fmt.Fprintln(errOut, "usage: depotctl register [common flags] --key <name> --id <hex>")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}
	if providers.Aliases == nil {
		fmt.Fprintf(errOut, "backend %q has no alias support\n", common.backend)
		return 1
	}

	id, err := parseID(idStr)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	registered, err := providers.Aliases.Register(context.Background(), []byte(key), id)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintln(out, formatID(registered))
	return 0
}

func cmdPack(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("pack", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)

	var outPath string
	fs.StringVar(&outPath, "out", "", "Output bundle file")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if outPath == "" || fs.NArg() == 0 {
		fmt.Fprintln(errOut, "usage: depotctl pack [common flags] --out <tar> <hex> [<hex> ...]")
		return 2
	}

	ids := make([]ident.Identifier, 0, fs.NArg())
	for _, arg := range fs.Args() {
		id, err := parseID(arg)
		if err != nil {
			fmt.Fprintf(errOut, "%s: %v\n", arg, err)
			return 1
		}
		ids = append(ids, id)
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	opts := bundle.ExportOptions{IncludeIndex: true}
	if err := bundle.Export(context.Background(), f, providers.Content, ids, opts); err != nil {
		_ = f.Close()
		fmt.Fprintln(errOut, err)
		return 1
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

func cmdUnpack(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("unpack", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	common.add(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if common.listBackends {
		printBackends(out)
		return 0
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: depotctl unpack [common flags] <tar>")
		return 2
	}

	providers, closeFn, err := common.open()
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if closeFn != nil {
		defer closeFn()
	}

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer f.Close()

	if err := bundle.Import(context.Background(), f, providers.Content); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}
