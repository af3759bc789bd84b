package linker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/wasm-ld/ar"
)

func TestParseArgs(t *testing.T) {
	var stdout bytes.Buffer
	d := &driver{cfg: NewConfig()}
	exit, err := d.parseArgs([]string{
		"-o", "prog.wasm",
		"--entry=start",
		"-L", "/usr/lib",
		"-L/opt/lib",
		"-lfoo",
		"-z", "stack-size=131072",
		"--initial-memory", "196608",
		"--max-memory=262144",
		"--sysroot", "/sdk",
		"--allow-undefined",
		"--emit-relocs",
		"input.o",
	}, &stdout)
	if err != nil {
		t.Fatalf("parseArgs: %v", err)
	}
	if exit {
		t.Fatal("unexpected exit")
	}

	cfg := d.cfg
	if cfg.OutputFile != "prog.wasm" || cfg.Entry != "start" || cfg.Sysroot != "/sdk" {
		t.Errorf("string options: %+v", cfg)
	}
	if cfg.StackSize != 131072 || cfg.InitialMemory != 196608 || cfg.MaxMemory != 262144 {
		t.Errorf("numeric options: %+v", cfg)
	}
	if !cfg.AllowUndefined || !cfg.EmitRelocs {
		t.Errorf("flags: %+v", cfg)
	}
	if len(cfg.SearchPaths) != 2 || cfg.SearchPaths[0] != "/usr/lib" || cfg.SearchPaths[1] != "/opt/lib" {
		t.Errorf("search paths: %v", cfg.SearchPaths)
	}

	// Input order is preserved across -l and positional arguments.
	if len(d.actions) != 2 {
		t.Fatalf("actions: %+v", d.actions)
	}
	if !d.actions[0].library || d.actions[0].value != "foo" {
		t.Errorf("action 0: %+v", d.actions[0])
	}
	if d.actions[1].library || d.actions[1].value != "input.o" {
		t.Errorf("action 1: %+v", d.actions[1])
	}
}

func TestParseArgsUnknown(t *testing.T) {
	var stdout bytes.Buffer
	d := &driver{cfg: NewConfig()}
	if _, err := d.parseArgs([]string{"--no-such-flag"}, &stdout); err == nil {
		t.Fatal("expected unknown argument error")
	}
}

func TestVersionExits(t *testing.T) {
	var stdout bytes.Buffer
	d := &driver{cfg: NewConfig()}
	exit, err := d.parseArgs([]string{"--version"}, &stdout)
	if err != nil || !exit {
		t.Fatalf("exit=%v err=%v", exit, err)
	}
	if !bytes.Contains(stdout.Bytes(), []byte("wasm-ld")) {
		t.Errorf("version output: %q", stdout.String())
	}
}

func TestHelp(t *testing.T) {
	var stdout bytes.Buffer
	d := &driver{cfg: NewConfig()}
	exit, err := d.parseArgs([]string{"--help"}, &stdout)
	if err != nil || !exit {
		t.Fatalf("exit=%v err=%v", exit, err)
	}
	if !bytes.Contains(stdout.Bytes(), []byte("-o <path>")) {
		t.Errorf("help output: %q", stdout.String())
	}
}

func TestSearchLibrary(t *testing.T) {
	dir := t.TempDir()
	lib := filepath.Join(dir, "libdemo.a")
	if err := os.WriteFile(lib, ar.Build(nil), 0o644); err != nil {
		t.Fatal(err)
	}
	exact := filepath.Join(dir, "special.a")
	if err := os.WriteFile(exact, ar.Build(nil), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &driver{cfg: NewConfig()}
	d.cfg.SearchPaths = []string{"/nonexistent", dir}

	path, ok := d.searchLibrary("demo")
	if !ok || path != lib {
		t.Errorf("searchLibrary(demo): %q %v", path, ok)
	}
	if _, ok := d.searchLibrary("missing"); ok {
		t.Error("found a library that does not exist")
	}

	// A ':' prefix requests the exact file name.
	path, ok = d.searchLibrary(":special.a")
	if !ok || path != exact {
		t.Errorf("searchLibrary(:special.a): %q %v", path, ok)
	}
}

func TestSysrootSubstitution(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "lib")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	lib := filepath.Join(sub, "libsys.a")
	if err := os.WriteFile(lib, ar.Build(nil), 0o644); err != nil {
		t.Fatal(err)
	}

	d := &driver{cfg: NewConfig()}
	d.cfg.Sysroot = root
	d.cfg.SearchPaths = []string{"=lib"}

	path, ok := d.searchLibrary("sys")
	if !ok || path != lib {
		t.Errorf("sysroot search: %q %v", path, ok)
	}
}

func TestLinkViaLibraryFlag(t *testing.T) {
	dir := t.TempDir()
	caller, callee := crossFileInputs(5)
	a := writeInput(t, dir, "a.o", caller.Encode())

	libDir := filepath.Join(dir, "libs")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	lib := ar.Build([]ar.BuildMember{
		{Name: "f.o", Data: callee.Encode(), Symbols: []string{"f"}},
	})
	if err := os.WriteFile(filepath.Join(libDir, "libf.a"), lib, 0o644); err != nil {
		t.Fatal(err)
	}

	out := mustLink(t, dir, "--entry", "main", "-L", libDir, a, "-lf")
	if got := call(t, out, "main"); got != 5 {
		t.Errorf("main() = %d, want 5", got)
	}
}

func TestMissingLibrary(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.o", const42Object().Encode())
	_, _, err := runLink(t, dir, "--entry", "main", a, "-lnothere")
	if err == nil {
		t.Fatal("expected missing library error")
	}
}

func TestNoInputFiles(t *testing.T) {
	dir := t.TempDir()
	_, _, err := runLink(t, dir, "--entry", "main")
	if err == nil {
		t.Fatal("expected no-input error")
	}
}
