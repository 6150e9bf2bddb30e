// Command thforth is a CLI driver around package forth, modeled on
// original_source/libforth.c's main_forth and the teacher's flag-handling
// idiom: the standard flag package, internal/logio for leveled diagnostics,
// and a deferred os.Exit(log.ExitCode()).
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	forth "github.com/embedforth/thforth"
	"github.com/embedforth/thforth/internal/fileinput"
	"github.com/embedforth/thforth/internal/logio"
)

const version = "thforth 0.1"

const defaultSaveFile = "forth.core"

func main() {
	flagArgs, tailArgs := splitOptionTerminator(os.Args[1:])

	var (
		evals       stringsFlag
		saveFile    string
		useDefault  bool
		loadFile    string
		coreKB      uint
		forceStdin  bool
		verbosity   countFlag
		showVersion bool
		selfTest    bool
		dumpFile    string
	)
	fs := flag.NewFlagSet("thforth", flag.ExitOnError)
	fs.Var(&evals, "e", "evaluate `STR` immediately (repeatable)")
	fs.StringVar(&saveFile, "s", "", "save core image to `FILE` on clean exit")
	fs.BoolVar(&useDefault, "d", false, "save core image to "+defaultSaveFile+" on clean exit")
	fs.StringVar(&loadFile, "l", "", "load core image from `FILE` instead of bootstrapping fresh")
	fs.UintVar(&coreKB, "m", 0, "set core size in `KBYTES` before bootstrapping")
	fs.BoolVar(&forceStdin, "t", false, "force reading from standard input even with file arguments")
	fs.Var(&verbosity, "v", "increase verbosity (repeatable)")
	fs.BoolVar(&showVersion, "V", false, "print version information and exit")
	fs.BoolVar(&selfTest, "u", false, "run the internal smoke-test self-check and report via exit code")
	fs.StringVar(&dumpFile, "dump", "", "write a human-readable core dump to `FILE` on exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: thforth [options] [--] [file ...]\n\noptions:\n")
		fs.PrintDefaults()
	}
	fs.Parse(flagArgs)

	if showVersion {
		fmt.Println(version)
		return
	}

	fileArgs := append(append([]string(nil), fs.Args()...), tailArgs...)

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer os.Exit(log.ExitCode())

	if selfTest {
		log.ErrorIf(runSelfCheck(&log))
		return
	}

	if loadFile != "" && coreKB != 0 {
		log.Errorf("-l and -m are mutually exclusive")
		return
	}

	opts := []forth.Option{
		forth.WithOutput(os.Stdout),
		forth.WithLogf(log.Leveledf("TRACE")),
	}
	if coreKB != 0 {
		cells := forth.Cell(coreKB) * 1024 / 8
		opts = append(opts, forth.WithCoreSize(cells))
	}
	if verbosity > 0 {
		opts = append(opts, forth.WithDebug(forth.Cell(verbosity)))
	}
	if len(fileArgs) > 0 {
		opts = append(opts, forth.WithArgs(fileArgs))
	}

	var vm *forth.VM
	var loadErr error
	if loadFile != "" {
		f, err := os.Open(loadFile)
		if err != nil {
			log.Errorf("opening core %q: %v", loadFile, err)
			return
		}
		vm, loadErr = forth.LoadCore(f, opts...)
		f.Close()
		if loadErr != nil {
			log.Errorf("loading core %q: %v", loadFile, loadErr)
			return
		}
	} else {
		vm = forth.New(opts...)
	}
	defer vm.Close()

	ctx := context.Background()
	clean := true

	for _, s := range evals {
		if err := vm.Eval(ctx, s); err != nil {
			log.ErrorIf(err)
			clean = false
		}
	}

	if len(fileArgs) > 0 {
		if err := evalFiles(ctx, vm, fileArgs); err != nil {
			log.ErrorIf(err)
			clean = false
		}
	}

	useStdin := forceStdin || (len(fileArgs) == 0 && len(evals) == 0)
	if useStdin {
		if err := vm.SetFileInput("<stdin>", os.Stdin); err != nil {
			log.ErrorIf(err)
			clean = false
		} else if err := vm.Run(ctx); err != nil {
			log.ErrorIf(err)
			clean = false
		}
	}

	if dumpFile != "" {
		if err := writeDump(vm, dumpFile); err != nil {
			log.ErrorIf(err)
		}
	}

	if clean && !vm.Invalid() {
		switch {
		case saveFile != "":
			log.ErrorIf(saveCoreTo(vm, saveFile))
		case useDefault:
			log.ErrorIf(saveCoreTo(vm, defaultSaveFile))
		}
	}
}

// evalFiles feeds every named file through a single shared VM instance, in
// sequence, the way fileinput.Input's Queue was built for: one rune reader
// spanning however many files were named, a leading "#!" line stripped from
// each the way the original skips a shebang before interpreting a script.
func evalFiles(ctx context.Context, vm *forth.VM, names []string) error {
	in := &fileinput.Input{}
	for _, name := range names {
		f, err := openShebangStripped(name)
		if err != nil {
			return err
		}
		in.Queue = append(in.Queue, f)
	}
	if err := vm.SetFileInput(strings.Join(names, ","), &runeReaderAsReader{rr: in}); err != nil {
		return err
	}
	return vm.Run(ctx)
}

// shebangFile skips a leading "#!" line, then serves the rest of the file
// verbatim; it implements Name() and Close() so fileinput.Input's diagnostics
// and its close-on-advance bookkeeping keep working.
type shebangFile struct {
	f    *os.File
	br   *bufio.Reader
	name string
}

func openShebangStripped(path string) (*shebangFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	br := bufio.NewReader(f)
	if first, err := br.Peek(2); err == nil && string(first) == "#!" {
		br.ReadString('\n')
	}
	return &shebangFile{f: f, br: br, name: path}, nil
}

func (s *shebangFile) Read(p []byte) (int, error) { return s.br.Read(p) }
func (s *shebangFile) Name() string               { return s.name }
func (s *shebangFile) Close() error               { return s.f.Close() }

// runeReaderAsReader bridges fileinput.Input's io.RuneReader interface to
// the plain io.Reader VM.SetFileInput expects, re-encoding each rune read as
// UTF-8 into a small pending buffer.
type runeReaderAsReader struct {
	rr  io.RuneReader
	buf []byte
}

func (a *runeReaderAsReader) Read(p []byte) (int, error) {
	for len(a.buf) == 0 {
		r, _, err := a.rr.ReadRune()
		if err != nil {
			return 0, err
		}
		var tmp [utf8.UTFMax]byte
		n := utf8.EncodeRune(tmp[:], r)
		a.buf = append(a.buf, tmp[:n]...)
	}
	n := copy(p, a.buf)
	a.buf = a.buf[n:]
	return n, nil
}

func saveCoreTo(vm *forth.VM, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return vm.SaveCore(f)
}

func writeDump(vm *forth.VM, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return vm.DumpCore(f)
}

// splitOptionTerminator implements the original's bare "-" option-processing
// terminator, which the flag package has no native support for: arguments up
// to and including the first literal "-" go to flag parsing, everything
// after it is treated as a file name even if it begins with "-".
func splitOptionTerminator(args []string) (flagArgs, tailArgs []string) {
	for i, a := range args {
		if a == "-" {
			return args[:i], args[i+1:]
		}
	}
	return args, nil
}

type stringsFlag []string

func (s *stringsFlag) String() string { return strings.Join(*s, ",") }
func (s *stringsFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }
func (c *countFlag) Set(string) error {
	*c++
	return nil
}
func (c *countFlag) IsBoolFlag() bool { return true }

// runSelfCheck exercises the public API against a few known-good snippets,
// reporting failures through log so ExitCode() reflects the outcome without
// ever invoking the Go toolchain. This stands in for "-u" per SPEC_FULL §12,
// since a real go test run is off limits to this driver.
func runSelfCheck(log *logio.Logger) error {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{"arithmetic", "2 3 + . ", "5"},
		{"dup", "4 dup + . ", "8"},
		{"define", ": square dup * ; 5 square . ", "25"},
		{"equal", "0 0 = . ", "1"},
	}
	passed := 0
	for _, c := range cases {
		var out bytes.Buffer
		vm := forth.New(forth.WithOutput(&out))
		err := vm.Eval(context.Background(), c.source)
		vm.Close()
		got := strings.TrimSpace(out.String())
		if err != nil {
			log.Errorf("self-check %s: %v", c.name, err)
			continue
		}
		if got != c.want {
			log.Errorf("self-check %s: got %q, want %q", c.name, got, c.want)
			continue
		}
		passed++
	}
	log.Printf("", "self-check: %d/%d cases passed", passed, len(cases))
	if passed != len(cases) {
		return fmt.Errorf("self-check: %d/%d cases failed", len(cases)-passed, len(cases))
	}
	return nil
}
