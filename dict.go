package forth

import (
	"fmt"
	"strings"
)

// compile appends a new word header at DIC: the name (NUL-terminated,
// cell-rounded), the previous PWD-field address, and a MISC cell packing
// name length (in cells), a clear hidden bit, and op. PWD is left pointing
// at the PWD-field cell just written, matching the classic layout where
// find() walks PWD fields and reads each header's MISC one cell further on.
func (vm *VM) compile(op opcode, name string) error {
	m := vm.img
	if len(name) == 0 || Cell(len(name)) >= maximumWordLength*cellSize {
		return &recoverableError{fmt.Sprintf("word name %q too long", name)}
	}

	header := m.reg(regDIC)
	for i := 0; i < len(name); i++ {
		if err := m.storeByte(header*cellSize+Cell(i), name[i]); err != nil {
			return err
		}
	}
	if err := m.storeByte(header*cellSize+Cell(len(name)), 0); err != nil {
		return err
	}
	l := Cell(len(name) + 1)
	l = (l + (cellSize - 1)) &^ (cellSize - 1)
	l /= cellSize
	m.setReg(regDIC, header+l)

	pwdAddr := m.reg(regDIC)
	if err := m.store(pwdAddr, m.reg(regPWD)); err != nil {
		return err
	}
	m.setReg(regPWD, pwdAddr)
	m.setReg(regDIC, pwdAddr+1)

	miscAddr := m.reg(regDIC)
	if err := m.store(miscAddr, packMISC(op, l, false)); err != nil {
		return err
	}
	m.setReg(regDIC, miscAddr+1)
	return nil
}

// readName reads the NUL-terminated name stored len cells before pwdAddr.
func (m *image) readName(pwdAddr, lenCells Cell) (string, error) {
	start := (pwdAddr - lenCells) * cellSize
	var b strings.Builder
	for i := Cell(0); i < lenCells*cellSize; i++ {
		c, err := m.loadByte(start + i)
		if err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}

// find walks the dictionary chain from PWD looking for a case-insensitive,
// non-hidden name match. It returns the MISC cell address on success, or 0.
func (vm *VM) find(name string) (Cell, error) {
	m := vm.img
	w := m.reg(regPWD)
	for w > dictionaryStart {
		misc, err := m.load(w + 1)
		if err != nil {
			return 0, err
		}
		length := wordLength(misc)
		if !wordHidden(misc) {
			got, err := m.readName(w, length)
			if err != nil {
				return 0, err
			}
			if strings.EqualFold(got, name) {
				return w + 1, nil
			}
		}
		next, err := m.load(w)
		if err != nil {
			return 0, err
		}
		w = next
	}
	return 0, nil
}

// defineConstant synthesizes ": NAME VALUE ;" and evaluates it, relying on
// ":" and ";" already being defined (true from bootstrap onward).
func (vm *VM) defineConstant(name string, value Cell) error {
	src := fmt.Sprintf(": %s %d ;", name, int64(value))
	return vm.evalString(src)
}

// hide toggles the hidden bit of the word whose MISC cell is at addr.
func (vm *VM) hide(addr Cell) error {
	misc, err := vm.img.load(addr)
	if err != nil {
		return err
	}
	return vm.img.store(addr, misc^hiddenBit)
}
