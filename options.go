package forth

import (
	"io"
	"io/ioutil"

	"github.com/embedforth/thforth/internal/flushio"
)

// Option configures a VM at construction time (New or LoadCore): small
// composable values applied in order, rather than a single options struct.
type Option interface{ apply(vm *VM) }

var defaultOptions = Options(
	withCoreSize(defaultCoreSize),
	withOutput(ioutil.Discard),
	withErrorHandler(errorRecover),
)

// Options composes any number of Option values into one, flattening nested
// Options and dropping nils, matching the teacher's VMOptions helper.
func Options(opts ...Option) Option {
	var res options
	for _, opt := range opts {
		switch impl := opt.(type) {
		case nil, noption:
		case options:
			res = append(res, impl...)
		default:
			res = append(res, opt)
		}
	}
	switch len(res) {
	case 0:
		return noption{}
	case 1:
		return res[0]
	default:
		return res
	}
}

type noption struct{}

func (noption) apply(*VM) {}

type options []Option

func (opts options) apply(vm *VM) {
	for _, opt := range opts {
		if opt != nil {
			opt.apply(vm)
		}
	}
}

type coreSizeOption Cell

// WithCoreSize sets the number of cells the image is allocated with. Options
// apply in order and this one replaces the image, so it must come before
// options that write into the image, such as WithDebug, WithFileInput or
// WithStringInput.
func WithCoreSize(size Cell) Option { return coreSizeOption(size) }

func withCoreSize(size Cell) coreSizeOption { return coreSizeOption(size) }

func (o coreSizeOption) apply(vm *VM) {
	img, err := newImage(Cell(o))
	if err != nil {
		img, _ = newImage(defaultCoreSize)
	}
	vm.img = img
}

type outputOption struct{ io.Writer }

// WithOutput sets where EMIT, PRINT, PNUM, and .s write Forth-visible text.
func WithOutput(w io.Writer) Option { return withOutput(w) }

func withOutput(w io.Writer) outputOption { return outputOption{w} }

func (o outputOption) apply(vm *VM) {
	if vm.out != nil {
		vm.out.Flush()
	}
	vm.out = flushio.NewWriteFlusher(o.Writer)
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

type teeOption struct{ io.Writer }

// WithTee additionally mirrors all output to w, alongside whatever
// WithOutput already set (or the discard default).
func WithTee(w io.Writer) Option { return teeOption{w} }

func (o teeOption) apply(vm *VM) {
	vm.out = flushio.WriteFlushers(vm.out, flushio.NewWriteFlusher(o.Writer))
	if cl, ok := o.Writer.(io.Closer); ok {
		vm.closers = append(vm.closers, cl)
	}
}

type logfOption func(mess string, args ...interface{})

// WithLogf sets the function vm.trace feeds DEBUG-gated diagnostics to.
func WithLogf(logf func(mess string, args ...interface{})) Option { return logfOption(logf) }

func (o logfOption) apply(vm *VM) { vm.logf = o }

type fileInputOption struct {
	name string
	r    io.Reader
}

// WithFileInput sets SOURCE_ID to the file source and queues r (named name
// for diagnostics) as the program text READ consumes.
func WithFileInput(name string, r io.Reader) Option { return fileInputOption{name, r} }

func (o fileInputOption) apply(vm *VM) {
	h := &handle{r: o.r}
	if rc, ok := o.r.(io.Closer); ok {
		h.c = rc
	}
	hc := vm.handles.add(h)
	vm.img.setReg(regFIN, hc)
	vm.img.setReg(regSOURCEID, sourceFile)
}

type stringInputOption string

// WithStringInput sets SOURCE_ID to the string source with s as the program
// text, the same register setup EVALUATE uses internally.
func WithStringInput(s string) Option { return stringInputOption(s) }

func (o stringInputOption) apply(vm *VM) {
	vm.stringInput = append([]byte(o), 0)
	vm.img.setReg(regSIDX, 0)
	vm.img.setReg(regSLEN, Cell(len(o)+1))
	vm.img.setReg(regSOURCEID, sourceString)
}

type argsOption []string

// WithArgs sets the argument list; New writes its length into the ARGC
// register. The ARGV register is not set.
func WithArgs(args []string) Option { return argsOption(args) }

func (o argsOption) apply(vm *VM) { vm.argv = append([]string(nil), o...) }

type debugOption Cell

// WithDebug sets the initial DEBUG register level, the same register the
// CLI's repeatable -v flag wires, gating how much of the inner interpreter's
// trace vm.trace actually emits.
func WithDebug(level Cell) Option { return debugOption(level) }

func (o debugOption) apply(vm *VM) { vm.img.setReg(regDEBUG, Cell(o)) }

type errorHandlerOption errorHandlerMode

// WithErrorHandler sets the initial ERROR_HANDLER disposition; Forth code
// may still change it later by storing into the `error-handler` register.
func WithErrorHandler(mode errorHandlerMode) Option { return errorHandlerOption(mode) }

func withErrorHandler(mode errorHandlerMode) errorHandlerOption { return errorHandlerOption(mode) }

func (o errorHandlerOption) apply(vm *VM) { vm.errHandler = errorHandlerMode(o) }
