// Trompe CLI - runs compiled trompe object files
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/trompe/manifest"
	"github.com/chazu/trompe/store"
	"github.com/chazu/trompe/vm"
	"github.com/chazu/trompe/vm/objfile"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code. Keeping os.Exit
// out of here lets deferred cleanup such as closing the cache run.
func run(args []string) int {
	flags := flag.NewFlagSet("trompe", flag.ContinueOnError)
	verbosity := flags.Int("v", -1, "Log verbosity (0 = errors only, 2 = debug); overrides trompe.toml")
	disasm := flags.Bool("disasm", false, "Print disassembly instead of running")
	trace := flags.Bool("trace", false, "Log every dispatched instruction (needs -v 2)")
	configDir := flags.String("config", "", "Directory containing trompe.toml (default: search upward from .)")
	cachePath := flags.String("cache", "", "Object cache database (default: from trompe.toml)")
	noCache := flags.Bool("no-cache", false, "Do not record run files in the cache")
	cached := flags.String("cached", "", "Run the latest cached object with this name")
	list := flags.Bool("list", false, "List cached objects and exit")

	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: trompe [options] [file.tro...]\n\n")
		fmt.Fprintf(os.Stderr, "Loads object files and runs their entry code. Without files, runs the\n")
		fmt.Fprintf(os.Stderr, "entry named in trompe.toml.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  trompe main.tro            # Run main.tro\n")
		fmt.Fprintf(os.Stderr, "  trompe -disasm main.tro    # Show its instructions\n")
		fmt.Fprintf(os.Stderr, "  trompe -cached main        # Run the last cached build of main\n")
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := loadManifest(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	configureLogging(m, *verbosity)

	opts := m.Options()
	if *trace {
		opts.Trace = true
	}

	var cache *store.Store
	if path := resolveCachePath(m, *cachePath); path != "" && (!*noCache || *cached != "" || *list) {
		cache, err = store.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer cache.Close()
	}

	if *list {
		if err := listCache(cache); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	inputs, err := collectInputs(m, cache, flags.Args(), *cached, !*noCache)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(inputs) == 0 {
		flags.Usage()
		return 2
	}

	exitCode := 0
	for _, input := range inputs {
		code, err := runInput(input, opts, *disasm)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", input.name, err)
			return 1
		}
		exitCode = code
	}
	return exitCode
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	return manifest.FindAndLoad(".")
}

func configureLogging(m *manifest.Manifest, verbosity int) {
	var path *string
	if m != nil {
		if verbosity < 0 {
			verbosity = m.Log.Verbosity
		}
		if p := m.LogPath(); p != "" {
			path = &p
		}
	}
	if verbosity < 0 {
		verbosity = 0
	}
	commonlog.Configure(verbosity, path)
}

func resolveCachePath(m *manifest.Manifest, flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if m != nil {
		return m.CachePath()
	}
	return ""
}

// input is one object file to run, already read into memory.
type input struct {
	name string
	data []byte
}

func collectInputs(m *manifest.Manifest, cache *store.Store, paths []string, cached string, record bool) ([]input, error) {
	if cached != "" {
		if cache == nil {
			return nil, errors.New("-cached needs a cache (-cache or trompe.toml)")
		}
		data, hash, err := cache.Latest(cached)
		if err != nil {
			return nil, fmt.Errorf("cache lookup %s: %w", cached, err)
		}
		return []input{{name: cached + "@" + hash[:12], data: data}}, nil
	}

	if len(paths) == 0 && m != nil && m.EntryPath() != "" {
		paths = []string{m.EntryPath()}
	}

	var inputs []input
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if cache != nil && record {
			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			if _, err := cache.Put(name, data); err != nil {
				return nil, err
			}
		}
		inputs = append(inputs, input{name: path, data: data})
	}
	return inputs, nil
}

func runInput(in input, opts vm.Options, disasm bool) (int, error) {
	f, err := objfile.Decode(in.data)
	if err != nil {
		return 0, err
	}

	interp := vm.New(opts)
	interp.RegisterCorePrimitives()
	code, err := f.Load(interp.Heap)
	if err != nil {
		return 0, err
	}

	if disasm {
		printDisassembly(interp.Heap, code, map[*vm.CompiledCode]bool{})
		return 0, nil
	}

	result, err := interp.Run(code, nil)
	if err != nil {
		return 0, err
	}
	defer interp.Release(result)

	if !result.IsUnit() {
		fmt.Println(interp.Describe(result))
	}
	// If the entry returns a small integer, use it as exit code
	if n, ok := result.AsInt(); ok && n >= 0 && n < 256 {
		return int(n), nil
	}
	return 0, nil
}

// printDisassembly prints code and every code object in its constant pool.
func printDisassembly(heap *vm.Heap, code *vm.CompiledCode, seen map[*vm.CompiledCode]bool) {
	if seen[code] {
		return
	}
	seen[code] = true
	fmt.Println(code.Disassemble(heap))
	for _, id := range code.Lits {
		if obj, err := heap.Lookup(id); err == nil && obj.Kind == vm.ObjCode {
			printDisassembly(heap, obj.Code, seen)
		}
	}
}

func listCache(cache *store.Store) error {
	if cache == nil {
		return errors.New("no cache configured")
	}
	entries, err := cache.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-24s %s %8d  %s\n", e.Name, e.Hash[:12], e.Size, e.Created.Format("2006-01-02 15:04:05"))
	}
	return nil
}
