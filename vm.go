package forth

import (
	"io"
	"time"

	"github.com/embedforth/thforth/internal/flushio"
)

// VM is one interpreter instance: its memory image plus the host-side
// resources (open files, the current string-input buffer, logging) that
// cannot live inside a serializable cell array. A VM is not safe for
// concurrent use by multiple goroutines; independent VMs may run in
// parallel freely (SPEC_FULL §5).
type VM struct {
	img *image

	f Cell // live top-of-stack scalar
	s Cell // variable stack pointer (index into img.cells)

	vstart, vend Cell // variable stack window, cached from STACK_SIZE at init
	rstart, rend Cell // return stack window

	handles     *handleTable
	stringInput []byte // current buffer when SOURCE_ID == sourceString (set by WithStringInput, Eval and EVALUATE)

	out flushio.WriteFlusher

	logf func(mess string, args ...interface{})

	argv []string

	errHandler errorHandlerMode

	closers []io.Closer

	startTime time.Time
}

func (vm *VM) trace(mess string, args ...interface{}) {
	if vm.img.reg(regDEBUG) != 0 && vm.logf != nil {
		vm.logf(mess, args...)
	}
}

func (vm *VM) invalid() bool { return vm.img.reg(regINVALID) != 0 }

func (vm *VM) invalidate() { vm.img.setReg(regINVALID, 1) }

// vpush pushes f onto the variable stack and sets f to v, matching the
// original's "*++S = f; f = v" idiom.
func (vm *VM) vpush(v Cell) error {
	if vm.s+1 >= vm.vend {
		return &fatalError{"variable stack overflow"}
	}
	vm.s++
	if err := vm.img.store(vm.s, vm.f); err != nil {
		return err
	}
	vm.f = v
	return nil
}

// vpop pops the variable stack into f, returning the old f, matching
// "v := f; f = *S--".
func (vm *VM) vpop() (Cell, error) {
	if vm.s <= vm.vstart {
		return 0, &fatalError{"variable stack underflow"}
	}
	old := vm.f
	nv, err := vm.img.load(vm.s)
	if err != nil {
		return 0, err
	}
	vm.f = nv
	vm.s--
	return old, nil
}

func (vm *VM) vdepth() Cell { return vm.s - vm.vstart }

// writeByte and writeString write to the VM's output, the way EMIT, PRINT,
// and the other primitives that produce Forth-visible text all need to.
func (vm *VM) writeByte(b byte) error {
	_, err := vm.out.Write([]byte{b})
	return err
}

func (vm *VM) writeString(s string) error {
	_, err := io.WriteString(vm.out, s)
	return err
}

// popAddr pops the top of the S stack without disturbing f, mirroring the
// half of "forth_get_string"/friends that consumes an address or a count
// while f is already holding a different, still-needed value.
func (vm *VM) popAddr() (Cell, error) {
	if vm.s <= vm.vstart {
		return 0, &fatalError{"variable stack underflow"}
	}
	v, err := vm.img.load(vm.s)
	if err != nil {
		return 0, err
	}
	vm.s--
	return v, nil
}

// pushRaw pushes a new value onto S without preserving the current f, for
// the few primitives (FREAD, FWRITE) that push a fresh result cell and then
// separately overwrite f with a status, rather than following the usual
// "push f, then set f" idiom.
func (vm *VM) pushRaw(v Cell) error {
	if vm.s+1 >= vm.vend {
		return &fatalError{"variable stack overflow"}
	}
	vm.s++
	return vm.img.store(vm.s, v)
}

// getString implements the classic "forth_get_string" helper: f must already
// hold the string's length, and its address is popped from beneath it. f is
// left unchanged by this call; the caller usually overwrites it next.
func (vm *VM) getString() (string, error) {
	length := vm.f
	addr, err := vm.popAddr()
	if err != nil {
		return "", err
	}
	return vm.img.readCStringN(addr, length)
}

// rpush pushes v onto the return stack.
func (vm *VM) rpush(v Cell) error {
	r := vm.img.reg(regRSTK)
	if r+1 >= vm.rend {
		return &fatalError{"return stack overflow"}
	}
	r++
	if err := vm.img.store(r, v); err != nil {
		return err
	}
	vm.img.setReg(regRSTK, r)
	return nil
}

// rpop pops the return stack.
func (vm *VM) rpop() (Cell, error) {
	r := vm.img.reg(regRSTK)
	if r <= vm.rstart {
		return 0, &fatalError{"return stack underflow"}
	}
	v, err := vm.img.load(r)
	if err != nil {
		return 0, err
	}
	vm.img.setReg(regRSTK, r-1)
	return v, nil
}
