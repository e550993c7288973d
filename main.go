package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"moria.us/binpatch/module"
	"moria.us/binpatch/patch"
)

const usageText = `Usage:
  binpatch [flags] [game_path]
      Check, apply or restore the patches. The game path is the Game2
      folder, and is searched for in CrossOver bottles if omitted.
  binpatch resolve [flags] FILE ADDR...
      Print the file offsets of virtual addresses in an executable image.
  binpatch sections [flags] FILE
      Print the section table of an executable image.
  binpatch registry [flags]
      Print the patch registry in YAML format.

Flags:
`

func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	return fs
}

func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func newLogger(w io.Writer, verbose, quiet bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func loadRegistry(name string) (*patch.Registry, error) {
	if name == "" {
		return builtinRegistry()
	}
	return patch.LoadRegistry(name)
}

// patchE runs check, apply or restore on every file in the registry.
func patchE(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("binpatch", stderr)
	check := fs.Bool("check", false, "check patch status without modifying files")
	restore := fs.Bool("restore", false, "restore original files from backups")
	patches := fs.StringP("patches", "p", "", "read patches from a YAML `file` instead of the built-in set")
	verbose := fs.BoolP("verbose", "v", false, "show descriptor details and debug logs")
	quiet := fs.BoolP("quiet", "q", false, "only log errors")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if *check && *restore {
		return errors.New("flags --check and --restore are mutually exclusive")
	}
	if fs.NArg() > 1 {
		return fmt.Errorf("got %d arguments, expected at most 1", fs.NArg())
	}
	mode := patch.Apply
	switch {
	case *check:
		mode = patch.Check
	case *restore:
		mode = patch.Restore
	}

	reg, err := loadRegistry(*patches)
	if err != nil {
		return err
	}

	var root string
	if fs.NArg() == 1 {
		root = fs.Arg(0)
	} else {
		var ok bool
		if root, ok = findInstall(bottleRoots(), driveRoots()); !ok {
			return errors.New("could not find the game installation, pass the path to the Game2 folder as an argument")
		}
		fmt.Fprintf(stdout, "Found game at: %s\n", root)
	}
	if !isDir(root) {
		return fmt.Errorf("path does not exist: %s", root)
	}
	var missing []string
	for _, file := range reg.Files() {
		if _, err := os.Stat(filepath.Join(root, file)); err != nil {
			missing = append(missing, file)
		}
	}
	if len(missing) != 0 {
		return fmt.Errorf("missing required files in %s: %s", root, strings.Join(missing, ", "))
	}

	if v := reg.Version(); v != "" {
		fmt.Fprintf(stdout, "Tested with version: %s\n", v)
	}
	e := patch.NewExecutor(newLogger(stderr, *verbose, *quiet))

	fmt.Fprintln(stdout, "\nChecking files...")
	attention := false
	allPatched := true
	for _, s := range reg.Sets() {
		res, err := e.Check(filepath.Join(root, s.File), s)
		if err != nil {
			fmt.Fprintf(stdout, "  %s: %v\n", s.File, err)
			attention = true
			allPatched = false
			continue
		}
		writeStatus(stdout, s.File, res, *verbose)
		switch res.After {
		case patch.FileUnknown, patch.FileMixed:
			attention = true
		}
		if res.After != patch.FilePatched {
			allPatched = false
		}
	}

	var errs []error
	switch mode {
	case patch.Check:
		if attention {
			return exitStatus(2)
		}
		return nil
	case patch.Restore:
		fmt.Fprintln(stdout, "\nRestoring original files...")
		for _, s := range reg.Sets() {
			res, err := e.Restore(filepath.Join(root, s.File), s)
			writeResult(stdout, s.File, res, err)
			if err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) != 0 {
			return errors.Join(errs...)
		}
		fmt.Fprintln(stdout, "\nRestore complete!")
		return nil
	}

	if allPatched {
		fmt.Fprintln(stdout, "\nAll files are already patched! Nothing to do.")
		return nil
	}
	fmt.Fprintln(stdout, "\nApplying patches...")
	for _, s := range reg.Sets() {
		res, err := e.Apply(filepath.Join(root, s.File), s)
		writeResult(stdout, s.File, res, err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) != 0 {
		fmt.Fprintln(stdout, "\nFiles with an unknown version were left untouched. The game may have been updated.")
		return errors.Join(errs...)
	}
	fmt.Fprintln(stdout, "\nPatching complete!")
	fmt.Fprintln(stdout, "If the game updates, you may need to run this again.")
	fmt.Fprintln(stdout, "To restore the original files: binpatch --restore")
	return nil
}

// resolveE prints the file offsets of virtual addresses.
func resolveE(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("resolve", stderr)
	format := fs.StringP("format", "f", "", "image format (pe, le, elf), detected if empty")
	count := fs.IntP("bytes", "n", 0, "also print this many bytes at each offset")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("got %d arguments, expected a file and at least one address", fs.NArg())
	}
	name := fs.Arg(0)
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	secs, _, err := module.Sections(module.Format(*format), data)
	if err != nil {
		return wrapError(err, name)
	}
	for _, arg := range fs.Args()[1:] {
		addr, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return wrapErrorf(err, "address %q", arg)
		}
		off, err := module.ResolveSections(secs, addr)
		if err != nil {
			return wrapError(err, name)
		}
		if off >= int64(len(data)) {
			return wrapErrorf(module.ErrAddressNotMapped, "%s: 0x%x is past the end of the file", name, addr)
		}
		fmt.Fprintf(stdout, "0x%x -> 0x%x", addr, off)
		if *count > 0 {
			end := off + int64(*count)
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			fmt.Fprintf(stdout, "  %s", module.HexString(data[off:end]))
		}
		fmt.Fprintln(stdout)
	}
	return nil
}

// sectionsE prints the section table of an image.
func sectionsE(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("sections", stderr)
	format := fs.StringP("format", "f", "", "image format (pe, le, elf), detected if empty")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("got %d arguments, expected 1", fs.NArg())
	}
	name := fs.Arg(0)
	data, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	secs, f, err := module.Sections(module.Format(*format), data)
	if err != nil {
		return wrapError(err, name)
	}
	w := bufio.NewWriter(stdout)
	module.DumpSections(w, "", f, secs)
	return w.Flush()
}

// registryE prints the registry in YAML format.
func registryE(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("registry", stderr)
	patches := fs.StringP("patches", "p", "", "read patches from a YAML `file` instead of the built-in set")
	if ok, err := parseFlags(fs, args); !ok {
		return err
	}
	reg, err := loadRegistry(*patches)
	if err != nil {
		return err
	}
	return patch.WriteRegistry(stdout, reg)
}

func mainE(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		switch args[0] {
		case "resolve":
			return resolveE(args[1:], stdout, stderr)
		case "sections":
			return sectionsE(args[1:], stdout, stderr)
		case "registry":
			return registryE(args[1:], stdout, stderr)
		}
	}
	return patchE(args, stdout, stderr)
}

func main() {
	if err := mainE(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var st exitStatus
		if errors.As(err, &st) {
			os.Exit(int(st))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
