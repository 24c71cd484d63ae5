// objcdump inspects Objective-C classes through the bridge and records
// their metadata as snapshots and name catalog entries.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/chazu/objcbridge/bridge"
	"github.com/chazu/objcbridge/catalog"
	"github.com/chazu/objcbridge/config"
	"github.com/chazu/objcbridge/objcrt/darwin"
	"github.com/chazu/objcbridge/snapshot"
)

// usageError reports missing or extra command arguments; the value is the
// expected argument list.
type usageError string

func (u usageError) Error() string { return "usage: " + string(u) }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// env is the state shared by the subcommands.
type env struct {
	cfg    *config.Config
	stdout io.Writer
	color  bool
	output string
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("objcdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("C", ".", "Directory to search for objcbridge.toml")
	verbosity := fs.Int("v", -1, "Log verbosity, overriding the configuration")
	output := fs.String("o", "", "Output file for dump (default <Class>.snapshot)")
	noColor := fs.Bool("no-color", false, "Disable highlighting")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: objcdump [options] <command> [args...]\n\n")
		fmt.Fprintf(stderr, "Commands:\n")
		fmt.Fprintf(stderr, "  show <Class>...      Print a class and its superclasses\n")
		fmt.Fprintf(stderr, "  attrs <Class>        List attribute names of instances\n")
		fmt.Fprintf(stderr, "  dump <Class>         Write a snapshot file\n")
		fmt.Fprintf(stderr, "  catalog <Class>...   Record public methods in the catalog\n")
		fmt.Fprintf(stderr, "  load <file>...       Import snapshot files into the catalog\n")
		fmt.Fprintf(stderr, "  print <file>...      Print snapshot files\n")
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  objcdump show NSMutableArray\n")
		fmt.Fprintf(stderr, "  objcdump -o view.snapshot dump NSView\n")
		fmt.Fprintf(stderr, "  objcdump load view.snapshot && objcdump attrs NSView\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg == nil {
		cfg = config.Default()
		if cfg.Dir, err = filepath.Abs(*dir); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	level := cfg.Log.Verbosity
	if *verbosity >= 0 {
		level = *verbosity
	}
	commonlog.Configure(level, nil)

	e := &env{
		cfg:    cfg,
		stdout: stdout,
		color:  !*noColor && isTerminal(stdout),
		output: *output,
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "show":
		err = e.show(rest)
	case "attrs":
		err = e.attrs(rest)
	case "dump":
		err = e.dump(rest)
	case "catalog":
		err = e.catalog(rest)
	case "load":
		err = e.load(rest)
	case "print":
		err = e.print(rest)
	default:
		fmt.Fprintf(stderr, "Unknown command %q\n\n", cmd)
		fs.Usage()
		return 2
	}
	var usage usageError
	if errors.As(err, &usage) {
		fmt.Fprintf(stderr, "Usage: objcdump %s %s\n", cmd, string(usage))
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ---------------------------------------------------------------------------
// Runtime access
// ---------------------------------------------------------------------------

func (e *env) openBridge(names bridge.NameRegistry) (*bridge.Bridge, error) {
	arch, err := e.cfg.Arch()
	if err != nil {
		return nil, err
	}
	rt, ffi, err := darwin.Open(e.cfg.Runtime.Library, e.cfg.Runtime.Frameworks...)
	if err != nil {
		return nil, err
	}
	opts := []bridge.Option{bridge.WithArch(arch)}
	if names != nil {
		opts = append(opts, bridge.WithNameRegistry(names))
	}
	return bridge.New(rt, ffi, opts...)
}

func (e *env) openCatalog() (*catalog.Catalog, error) {
	return catalog.Open(e.cfg.CatalogPath())
}

func capture(b *bridge.Bridge, name string) (*snapshot.Snapshot, error) {
	cls, err := b.Class(name)
	if err != nil {
		return nil, err
	}
	defer cls.Release()
	return snapshot.Capture(cls)
}

func readSnapshot(path string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func (e *env) show(args []string) error {
	if len(args) == 0 {
		return usageError("<Class>...")
	}
	b, err := e.openBridge(nil)
	if err != nil {
		return err
	}
	for _, name := range args {
		s, err := capture(b, name)
		if err != nil {
			return err
		}
		printSnapshot(e.stdout, s, e.color)
	}
	return nil
}

func (e *env) attrs(args []string) error {
	if len(args) != 1 {
		return usageError("<Class>")
	}
	cat, err := e.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()

	b, err := e.openBridge(cat)
	if err != nil {
		return err
	}
	cls, err := b.Class(args[0])
	if err != nil {
		return err
	}
	defer cls.Release()
	for _, name := range cls.InstanceAttrNames() {
		fmt.Fprintln(e.stdout, name)
	}
	return nil
}

func (e *env) dump(args []string) error {
	if len(args) != 1 {
		return usageError("<Class>")
	}
	b, err := e.openBridge(nil)
	if err != nil {
		return err
	}
	s, err := capture(b, args[0])
	if err != nil {
		return err
	}
	path := e.output
	if path == "" {
		path = args[0] + ".snapshot"
	}
	return writeSnapshot(path, s)
}

func writeSnapshot(path string, s *snapshot.Snapshot) error {
	data, err := snapshot.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (e *env) catalog(args []string) error {
	if len(args) == 0 {
		return usageError("<Class>...")
	}
	b, err := e.openBridge(nil)
	if err != nil {
		return err
	}
	cat, err := e.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()
	for _, name := range args {
		s, err := capture(b, name)
		if err != nil {
			return err
		}
		if err := cat.ImportSnapshot(s); err != nil {
			return err
		}
	}
	return nil
}

func (e *env) load(args []string) error {
	if len(args) == 0 {
		return usageError("<file>...")
	}
	cat, err := e.openCatalog()
	if err != nil {
		return err
	}
	defer cat.Close()
	for _, path := range args {
		s, err := readSnapshot(path)
		if err != nil {
			return err
		}
		if err := cat.ImportSnapshot(s); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%s: %d classes\n", path, len(s.Classes))
	}
	return nil
}

func (e *env) print(args []string) error {
	if len(args) == 0 {
		return usageError("<file>...")
	}
	for _, path := range args {
		s, err := readSnapshot(path)
		if err != nil {
			return err
		}
		printSnapshot(e.stdout, s, e.color)
	}
	return nil
}
