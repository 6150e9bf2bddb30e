package forth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/embedforth/thforth/internal/panicerr"
)

// ErrInvalid is returned by any API call made against an instance that has
// already been fatally poisoned (INVALID set) or explicitly closed, per
// SPEC_FULL §7's "subsequent API calls refuse" contract.
var ErrInvalid = errors.New("forth: instance is invalid")

// New allocates an image, applies opts, plants the bootstrap vocabulary, and
// returns a VM ready to Run or Eval. Host stdio is always wired into the
// handle table under STDIN/STDOUT/STDERR so FOPEN-family words and any
// Forth-level redirection have something real to name, independent of
// whichever writer WithOutput points ordinary program output at.
func New(opts ...Option) *VM {
	vm := &VM{startTime: time.Now(), handles: newHandleTable()}
	defaultOptions.apply(vm)
	Options(opts...).apply(vm)
	vm.finishInit()
	return vm
}

func (vm *VM) finishInit() {
	vm.wireStdio()

	size := vm.img.size()
	stackSize := size / minimumStackSize
	if stackSize < minimumStackSize {
		stackSize = minimumStackSize
	}
	vm.img.setReg(regSTACKSIZE, stackSize)
	vm.rstart = size - stackSize
	vm.rend = size
	vm.vstart = size - 2*stackSize
	vm.vend = vm.vstart + stackSize
	vm.s = vm.vstart
	vm.img.setReg(regRSTK, vm.rstart)
	vm.img.setReg(regBASE, 0)
	vm.img.setReg(regERRORHANDLER, Cell(vm.errHandler))
	vm.img.setReg(regARGC, Cell(len(vm.argv)))

	sidx, slen, source := vm.img.reg(regSIDX), vm.img.reg(regSLEN), vm.img.reg(regSOURCEID)
	input := vm.stringInput
	if err := vm.bootstrap(); err != nil {
		panic(fmt.Sprintf("forth: bootstrap failed: %v", err))
	}
	vm.img.setReg(regSIDX, sidx)
	vm.img.setReg(regSLEN, slen)
	vm.img.setReg(regSOURCEID, source)
	vm.stringInput = input
}

// finishLoadInit performs the same register/stack-window housekeeping
// finishInit does, but never calls bootstrap: the loaded image's dictionary
// and vocabulary are already complete. It does reset the variable stack
// pointer to empty and reprime f from the loaded TOP register, matching
// forth_make_default's unconditional stack reset on every load: only the
// single cached top-of-stack value round-trips through a save/load cycle as
// live stack state, not the stack's depth.
func (vm *VM) finishLoadInit() {
	vm.wireStdio()

	size := vm.img.size()
	stackSize := size / minimumStackSize
	if stackSize < minimumStackSize {
		stackSize = minimumStackSize
	}
	vm.img.setReg(regSTACKSIZE, stackSize)
	vm.rstart = size - stackSize
	vm.rend = size
	vm.vstart = size - 2*stackSize
	vm.vend = vm.vstart + stackSize
	vm.s = vm.vstart
	vm.f = vm.img.reg(regTOP)
}

func (vm *VM) wireStdio() {
	stdin := &handle{r: os.Stdin}
	stdout := &handle{w: os.Stdout, c: os.Stdout}
	stderr := &handle{w: os.Stderr, c: os.Stderr}
	vm.img.setReg(regSTDIN, vm.handles.add(stdin))
	vm.img.setReg(regSTDOUT, vm.handles.add(stdout))
	vm.img.setReg(regSTDERR, vm.handles.add(stderr))
	vm.img.setReg(regFOUT, vm.img.reg(regSTDOUT))
	if vm.img.reg(regFIN) == 0 {
		vm.img.setReg(regFIN, vm.img.reg(regSTDIN))
	}
}

// Run drives the interpreter to completion: a clean end of input, an
// unrecoverable error, or ctx cancellation. Panics escaping a primitive
// (e.g. a slice index bug surfaced by a corrupt loaded core) are recovered
// and reported as an ordinary error rather than taking the host process
// down with them, the same contract panicerr.Recover gives the teacher's
// own Run.
func (vm *VM) Run(ctx context.Context) error {
	err := panicerr.Recover("forth", func() error {
		return vm.run(ctx)
	})
	vm.out.Flush()
	if err == nil || err == io.EOF {
		return nil
	}
	return err
}

// Eval runs s as a self-contained nested program, through the same nested
// run EVALUATE uses, sharing the same variable stack and leaving the
// caller's own input source (if any) untouched.
func (vm *VM) Eval(ctx context.Context, s string) error {
	m := vm.img
	sidx, slen, source, input := m.reg(regSIDX), m.reg(regSLEN), m.reg(regSOURCEID), vm.stringInput
	err := panicerr.Recover("forth", func() error {
		return vm.evalNested(ctx, s)
	})
	m.setReg(regSIDX, sidx)
	m.setReg(regSLEN, slen)
	m.setReg(regSOURCEID, source)
	vm.stringInput = input
	vm.out.Flush()
	if err == nil || err == io.EOF {
		return nil
	}
	return err
}

// Invalid reports whether a fatal error (or Close) has poisoned this
// instance. Once this is true, Push, Pop, Find, SetFileInput, SetStringInput
// and SetArgs return ErrInvalid and Run, Eval and DefineConstant return a
// fatal error; StackPosition, SaveCore, DumpCore and Close still act.
func (vm *VM) Invalid() bool { return vm.invalid() }

// Push places v on the variable stack, as if a literal had just been read.
func (vm *VM) Push(v Cell) error {
	if vm.invalid() {
		return ErrInvalid
	}
	vm.f = vm.img.reg(regTOP)
	if err := vm.vpush(v); err != nil {
		return err
	}
	vm.img.setReg(regTOP, vm.f)
	return nil
}

// Pop removes and returns the top of the variable stack.
func (vm *VM) Pop() (Cell, error) {
	if vm.invalid() {
		return 0, ErrInvalid
	}
	vm.f = vm.img.reg(regTOP)
	v, err := vm.vpop()
	if err != nil {
		return 0, err
	}
	vm.img.setReg(regTOP, vm.f)
	return v, nil
}

// StackPosition reports the current variable stack depth.
func (vm *VM) StackPosition() Cell { return vm.vdepth() }

// Find looks up name in the dictionary, returning its MISC-cell address, or
// 0 if it is not defined (or is hidden).
func (vm *VM) Find(name string) (Cell, error) {
	if vm.invalid() {
		return 0, ErrInvalid
	}
	return vm.find(name)
}

// DefineConstant synthesizes and evaluates ": NAME VALUE ;", the same
// mechanism bootstrap uses to name every register.
func (vm *VM) DefineConstant(name string, value Cell) error { return vm.defineConstant(name, value) }

// SetFileInput switches SOURCE_ID to the file source, queuing r (named name
// for diagnostics) as the next program text READ consumes.
func (vm *VM) SetFileInput(name string, r io.Reader) error {
	if vm.invalid() {
		return ErrInvalid
	}
	fileInputOption{name, r}.apply(vm)
	return nil
}

// SetStringInput switches SOURCE_ID to the string source with s as the
// program text.
func (vm *VM) SetStringInput(s string) error {
	if vm.invalid() {
		return ErrInvalid
	}
	stringInputOption(s).apply(vm)
	return nil
}

// SetArgs updates the argv a running program observes through ARGC.
func (vm *VM) SetArgs(args []string) error {
	if vm.invalid() {
		return ErrInvalid
	}
	argsOption(args).apply(vm)
	vm.img.setReg(regARGC, Cell(len(args)))
	return nil
}

// Close releases every host resource this instance owns outright — files
// opened through the FOPEN-family words, plus whatever WithOutput/WithTee's
// writer owns if it is an io.Closer — and sets INVALID so every later API
// call refuses to act. The cell image itself needs no explicit release in
// Go; INVALID here is the same defensive flag the original sets after its
// own free(inst), kept for parity with hosts that poll Invalid().
func (vm *VM) Close() error {
	vm.invalidate()
	var first error
	for _, h := range vm.handles.entries {
		if h.opened && h.c != nil {
			if err := h.c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	for _, cl := range vm.closers {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	if vm.out != nil {
		if err := vm.out.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Free is free(inst) by its original name, for callers porting code against
// the C-shaped API; it does exactly what Close does.
func (vm *VM) Free() error { return vm.Close() }
