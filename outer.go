package forth

import (
	"context"
	"fmt"
	"io"
	"strconv"
)

// readCharRaw returns the next input byte from whichever source SOURCE_ID
// currently selects, or io.EOF once that source is exhausted.
func (vm *VM) readCharRaw() (byte, error) {
	m := vm.img
	if m.reg(regSOURCEID) == sourceString {
		idx, length := m.reg(regSIDX), m.reg(regSLEN)
		if idx >= length || int(idx) >= len(vm.stringInput) {
			return 0, io.EOF
		}
		c := vm.stringInput[idx]
		m.setReg(regSIDX, idx+1)
		return c, nil
	}
	hc := m.reg(regFIN)
	h, ok := vm.handles.get(hc)
	if !ok || h.r == nil {
		return 0, io.EOF
	}
	b, err := h.reader().ReadByte()
	if err != nil {
		return 0, io.EOF
	}
	return b, nil
}

// readChar implements KEY: EOF is a value (all bits set), not a stop
// condition, matching forth_get_char's int EOF widened into a cell.
func (vm *VM) readChar() (Cell, error) {
	c, err := vm.readCharRaw()
	if err != nil {
		return ^Cell(0), nil
	}
	return Cell(c), nil
}

func isSpaceByte(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// readWord reads one whitespace-delimited word, the way forth_get_word's
// scanf-based scan does; a NUL byte (the terminator string input carries)
// ends a word the same way whitespace does. It returns io.EOF only when the
// source is exhausted before any word characters were collected; a word that
// runs up against EOF is still returned successfully, with the next call
// reporting EOF. A word longer than 31 bytes is read to its end and rejected
// with a recoverable error.
func (vm *VM) readWord() (string, error) {
	var buf []byte
	const limit = 31
	for {
		c, err := vm.readCharRaw()
		if err != nil {
			if len(buf) == 0 {
				return "", io.EOF
			}
			break
		}
		if isSpaceByte(c) || c == 0 {
			if len(buf) == 0 {
				continue
			}
			break
		}
		buf = append(buf, c)
	}
	if len(buf) > limit {
		return "", &recoverableError{fmt.Sprintf("word too long: %.31s...", buf)}
	}
	return string(buf), nil
}

// numberify parses s as a cell value in the given base, the way strtol-backed
// numberify does: base 1 and any base above 36 are always rejected, and any
// unconsumed trailing character fails the parse.
func numberify(base Cell, s string) (Cell, bool) {
	if s == "" || base == 1 || base > 36 {
		return 0, false
	}
	v, err := strconv.ParseInt(s, int(base), 64)
	if err != nil {
		return 0, false
	}
	return Cell(v), true
}

// evalNested sets the string-input registers to s and drives run to
// completion, the Go equivalent of forth_eval. Callers that need to resume a
// previous input source afterward (the EVALUATE primitive; nothing else
// calls this mid-run) must save and restore the relevant registers and
// vm.stringInput themselves.
func (vm *VM) evalNested(ctx context.Context, s string) error {
	vm.img.setReg(regSIDX, 0)
	vm.img.setReg(regSLEN, Cell(len(s)+1))
	vm.img.setReg(regSOURCEID, sourceString)
	vm.stringInput = append([]byte(s), 0)
	return vm.run(ctx)
}

// evalString is the host-facing entry point used outside of any running
// dispatch loop: bootstrap, DefineConstant, and the public Eval API. There is
// no outer call frame to save here, unlike the nested EVALUATE primitive.
func (vm *VM) evalString(s string) error {
	return vm.evalNested(context.Background(), s)
}

// evaluateWord implements the EVALUATE primitive: run a nested, independent
// pass over a Forth string, sharing the same variable stack, then restore the
// caller's input source exactly as it was.
//
// The nested pass shares the live variable stack with the caller rather than
// getting one of its own: the cached top f is hung off the TOP register
// before the call (nested run's first retry-loop iteration reads its own
// starting f from exactly that register), and whatever the nested pass
// leaves in TOP on a clean exit is pushed back as ordinary stack data
// afterward, since f itself is a cache never otherwise visible in memory.
// The reservation bumping RSTK by one and restoring it to the saved value
// afterward (rather than decrementing) keeps the nested pass's own call
// frames from ever colliding with the caller's.
func (vm *VM) evaluateWord() error {
	m := vm.img
	savedSIDX, savedSLEN := m.reg(regSIDX), m.reg(regSLEN)
	savedFIN, savedSource := m.reg(regFIN), m.reg(regSOURCEID)
	savedInput := vm.stringInput
	r := m.reg(regRSTK)

	s, err := vm.getString()
	if err != nil {
		return err
	}
	if _, err := vm.vpop(); err != nil { // f becomes the value below (addr, len)
		return err
	}

	m.setReg(regTOP, vm.f)
	m.setReg(regRSTK, r+1)
	runErr := vm.evalNested(context.Background(), s)
	m.setReg(regRSTK, r)

	if err := vm.vpush(m.reg(regTOP)); err != nil {
		return err
	}
	if runErr != nil {
		vm.f = ^Cell(0)
	} else {
		vm.f = 0
	}

	m.setReg(regSIDX, savedSIDX)
	m.setReg(regSLEN, savedSLEN)
	m.setReg(regFIN, savedFIN)
	m.setReg(regSOURCEID, savedSource)
	vm.stringInput = savedInput

	if vm.invalid() {
		return &fatalError{"nested evaluate invalidated the interpreter"}
	}
	return nil
}
