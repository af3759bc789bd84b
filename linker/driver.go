package linker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-ld/ar"
	"github.com/wippyai/wasm-ld/errors"
	"github.com/wippyai/wasm-ld/wasm"
)

// VersionString identifies the linker in -v / --version output.
const VersionString = "wasm-ld 0.1"

const helpText = `Usage: wasm-ld [options] file...

Options:
  -o <path>                   output file (default a.out)
  -l <name>                   link lib<name>.a from the search paths;
                              -l :<name> links exactly <name>
  -L <dir>                    add a library search path (searched in
                              the order given)
  --entry <name>              entry symbol (default _start)
  --export-entry-as <name>    export the entry under this name
  --relocatable               produce a relocatable object
  --emit-relocs               emit reloc.CODE even in executable output
  --allow-undefined           do not fail on unresolved symbols
  --allow-undefined-file <f>  read allowed undefined names from a file
  -z stack-size=<n>           stack region size in bytes
  --initial-memory <n>        initial memory size in bytes
  --max-memory <n>            maximum memory size in bytes
  --strip-all, --strip-debug  suppress the name section
  --sysroot <dir>             substitute for '=' in search paths
  --check                     validate the output module after linking
  -color-diagnostics[=<x>]    color diagnostics: auto, always, never
  -no-color-diagnostics
  --verbose, -v               verbose output; -v also prints the version
  --version                   print the version and exit
  --help                      print this message
`

// driverAction is one ordered unit of command-line input: a file path or
// a library request. Order matters; inputs are processed exactly as they
// appear.
type driverAction struct {
	library bool
	value   string
}

type driver struct {
	cfg    *Config
	diag   *Diagnostics
	symtab *SymbolTable

	actions   []driverAction
	files     []InputFile
	colorMode string
}

// Link runs a complete link from command-line arguments (not including
// the program name). Diagnostics go to stderr; --help and version output
// go to stdout. A non-nil error means the link failed.
func Link(args []string, stdout, stderr io.Writer) error {
	d := &driver{cfg: NewConfig()}

	exit, err := d.parseArgs(args, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "wasm-ld: error: %v\n", err)
		return err
	}
	if exit {
		return nil
	}

	d.diag = NewDiagnostics(stderr, d.colorDiagnostics())
	if d.cfg.Verbose {
		l, lerr := zap.NewDevelopment()
		if lerr == nil {
			SetLogger(l)
		}
	}

	if err := d.link(); err != nil {
		d.diag.Report(err)
		return err
	}
	if d.diag.ErrorCount > 0 {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, nil, "link failed")
	}
	return nil
}

type argScanner struct {
	args []string
	pos  int
}

func (s *argScanner) next() (string, bool) {
	if s.pos >= len(s.args) {
		return "", false
	}
	a := s.args[s.pos]
	s.pos++
	return a, true
}

// value returns the flag's operand: the rest of arg after the flag name,
// an "=value" suffix, or the next argument.
func (s *argScanner) value(arg, flag string) (string, error) {
	rest := arg[len(flag):]
	if rest != "" {
		return strings.TrimPrefix(rest, "="), nil
	}
	v, ok := s.next()
	if !ok {
		return "", fmt.Errorf("%s: missing argument", flag)
	}
	return v, nil
}

// parseArgs fills the configuration and records input actions in order.
// Returns exit=true for invocations that only print and leave.
func (d *driver) parseArgs(args []string, stdout io.Writer) (exit bool, err error) {
	cfg := d.cfg
	colorMode := "auto"
	printVersion := false

	s := &argScanner{args: args}
	for {
		arg, ok := s.next()
		if !ok {
			break
		}
		switch {
		case arg == "--help":
			fmt.Fprint(stdout, helpText)
			return true, nil
		case arg == "--version":
			fmt.Fprintln(stdout, VersionString)
			return true, nil
		case arg == "-v":
			printVersion = true
			cfg.Verbose = true
		case arg == "--verbose":
			cfg.Verbose = true
		case arg == "--relocatable":
			cfg.Relocatable = true
		case arg == "--emit-relocs":
			cfg.EmitRelocs = true
		case arg == "--allow-undefined":
			cfg.AllowUndefined = true
		case arg == "--strip-all":
			cfg.StripAll = true
		case arg == "--strip-debug":
			cfg.StripDebug = true
		case arg == "--check":
			cfg.Check = true
		case arg == "-no-color-diagnostics" || arg == "--no-color-diagnostics":
			colorMode = "never"
		case arg == "-color-diagnostics" || arg == "--color-diagnostics":
			colorMode = "always"
		case strings.HasPrefix(arg, "-color-diagnostics="):
			colorMode = arg[len("-color-diagnostics="):]
		case strings.HasPrefix(arg, "--color-diagnostics="):
			colorMode = arg[len("--color-diagnostics="):]
		case arg == "-o" || strings.HasPrefix(arg, "-o="):
			if cfg.OutputFile, err = s.value(arg, "-o"); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--entry"):
			if cfg.Entry, err = s.value(arg, "--entry"); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--export-entry-as"):
			if cfg.ExportEntryAs, err = s.value(arg, "--export-entry-as"); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--sysroot"):
			if cfg.Sysroot, err = s.value(arg, "--sysroot"); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--allow-undefined-file"):
			path, err := s.value(arg, "--allow-undefined-file")
			if err != nil {
				return false, err
			}
			if err := d.parseUndefinedFile(path); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--initial-memory"):
			if cfg.InitialMemory, err = s.intValue(arg, "--initial-memory"); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "--max-memory"):
			if cfg.MaxMemory, err = s.intValue(arg, "--max-memory"); err != nil {
				return false, err
			}
		case arg == "-z" || strings.HasPrefix(arg, "-z="):
			v, err := s.value(arg, "-z")
			if err != nil {
				return false, err
			}
			if err := d.parseZOption(v); err != nil {
				return false, err
			}
		case strings.HasPrefix(arg, "-L"):
			dir, err := s.value(arg, "-L")
			if err != nil {
				return false, err
			}
			cfg.SearchPaths = append(cfg.SearchPaths, dir)
		case strings.HasPrefix(arg, "-l"):
			name, err := s.value(arg, "-l")
			if err != nil {
				return false, err
			}
			d.actions = append(d.actions, driverAction{library: true, value: name})
		case strings.HasPrefix(arg, "-"):
			return false, fmt.Errorf("unknown argument: %s", arg)
		default:
			d.actions = append(d.actions, driverAction{value: arg})
		}
	}

	if printVersion {
		fmt.Fprintln(stdout, VersionString)
	}
	d.colorMode = colorMode
	return false, nil
}

func (s *argScanner) intValue(arg, flag string) (uint32, error) {
	v, err := s.value(arg, flag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: number expected, but got %s", flag, v)
	}
	return uint32(n), nil
}

func (d *driver) parseZOption(opt string) error {
	key, value, found := strings.Cut(opt, "=")
	if !found {
		return fmt.Errorf("-z: expected key=value, got %s", opt)
	}
	switch key {
	case "stack-size":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid stack-size: %s", value)
		}
		d.cfg.StackSize = uint32(n)
	default:
		return fmt.Errorf("unknown -z option: %s", key)
	}
	return nil
}

// parseUndefinedFile loads newline-separated symbol names into the
// allowed-undefined set.
func (d *driver) parseUndefinedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.IO("read allow-undefined file", path, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if name := strings.TrimSpace(sc.Text()); name != "" {
			d.cfg.AllowUndefinedSymbols[name] = true
		}
	}
	return nil
}

func (d *driver) colorDiagnostics() bool {
	switch d.colorMode {
	case "always":
		return true
	case "never":
		return false
	default:
		return StderrHasColors()
	}
}

func (d *driver) link() error {
	cfg := d.cfg
	d.symtab = NewSymbolTable(cfg, d.diag)

	if len(d.actions) == 0 {
		return errors.NotFound("input", "(none)")
	}

	if !cfg.Relocatable {
		if cfg.Entry == "" {
			cfg.Entry = "_start"
		}
		if cfg.ExportEntryAs == "" {
			cfg.ExportEntryAs = cfg.Entry
		}
		if err := d.addSyntheticUndefinedFunction(cfg.Entry); err != nil {
			return err
		}
		if err := d.addSyntheticGlobal("__stack_pointer", 0); err != nil {
			return err
		}
	}

	if err := d.createFiles(); err != nil {
		return err
	}
	if d.diag.ErrorCount > 0 {
		return errors.Wrap(errors.PhaseParse, errors.KindInvalidData, nil, "link failed")
	}

	// Ingest every input. This adds almost all symbols the link needs,
	// pulling archive members as references to them appear.
	for _, f := range d.files {
		if err := d.symtab.AddFile(f); err != nil {
			return err
		}
	}

	if !cfg.AllowUndefined && !cfg.Relocatable {
		if err := d.symtab.ReportRemainingUndefines(); err != nil {
			return err
		}
	}

	out, err := writeResult(cfg, d.diag, d.symtab)
	if err != nil {
		return err
	}

	Logger().Debug("writing", zap.String("output", cfg.OutputFile))
	if err := os.WriteFile(cfg.OutputFile, out, 0o755); err != nil {
		return errors.IO("write output", cfg.OutputFile, err)
	}

	if cfg.Check {
		if err := checkOutput(out); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) addSyntheticUndefinedFunction(name string) error {
	debugf("injecting undefined func: %s", name)
	_, err := d.symtab.AddUndefinedFunction(name)
	return err
}

func (d *driver) addSyntheticGlobal(name string, value int32) error {
	debugf("injecting global: %s", name)
	sym, err := d.symtab.AddDefinedGlobal(name)
	if err != nil {
		return err
	}
	sym.SetOutputIndex(uint32(len(d.cfg.SyntheticGlobals)))
	d.cfg.SyntheticGlobals = append(d.cfg.SyntheticGlobals, &SyntheticGlobal{
		Sym: sym,
		Global: wasm.Global{
			Type: wasm.GlobalType{Type: wasm.ValI32, Mutable: true},
			Init: wasm.InitExpr{Opcode: wasm.OpI32Const, Value: int64(value)},
		},
	})
	return nil
}

func (d *driver) createFiles() error {
	for _, action := range d.actions {
		if action.library {
			if err := d.addLibrary(action.value); err != nil {
				return err
			}
		} else if err := d.addFile(action.value); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) addFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.IO("read input", path, err)
	}
	if ar.IsArchive(data) {
		d.files = append(d.files, NewArchiveFile(path, data))
	} else {
		d.files = append(d.files, NewObjectFile(path, data))
	}
	return nil
}

// addLibrary resolves -l<name> against the search paths.
func (d *driver) addLibrary(name string) error {
	path, ok := d.searchLibrary(name)
	if !ok {
		return errors.NotFound("library", "-l"+name)
	}
	return d.addFile(path)
}

// searchLibrary finds lib<name>.a on the search paths; a leading ':'
// requests the exact file name instead.
func (d *driver) searchLibrary(name string) (string, bool) {
	if exact, found := strings.CutPrefix(name, ":"); found {
		return d.findFromSearchPaths(exact)
	}
	return d.findFromSearchPaths("lib" + name + ".a")
}

func (d *driver) findFromSearchPaths(file string) (string, bool) {
	for _, dir := range d.cfg.SearchPaths {
		if path, ok := d.findFile(dir, file); ok {
			return path, true
		}
	}
	return "", false
}

// findFile joins dir and file; a dir starting with "=" has the "="
// replaced with the sysroot.
func (d *driver) findFile(dir, file string) (string, bool) {
	var path string
	if rest, found := strings.CutPrefix(dir, "="); found {
		path = filepath.Join(d.cfg.Sysroot, rest, file)
	} else {
		path = filepath.Join(dir, file)
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

// checkOutput compiles the emitted module to verify it is well-formed.
func checkOutput(module []byte) error {
	ctx := context.Background()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer rt.Close(ctx)
	if _, err := rt.CompileModule(ctx, module); err != nil {
		return errors.Wrap(errors.PhaseEmit, errors.KindInvalidData, err, "output failed validation")
	}
	return nil
}
