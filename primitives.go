package forth

import (
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// printCell formats v according to BASE and writes it to output, returning
// the status print_cell would: 0 on success, all-bits-set when BASE is 1 or
// above 36 (nothing is printed in that case).
func (vm *VM) printCell(v Cell) (Cell, error) {
	base := vm.img.reg(regBASE)
	var s string
	switch {
	case base == 10 || base == 0:
		s = strconv.FormatInt(v.signed(), 10)
	case base == 16:
		s = fmt.Sprintf("%x", uint64(v))
	case base == 1 || base > 36:
		return ^Cell(0), nil
	default:
		s = strconv.FormatUint(uint64(v), int(base))
	}
	if err := vm.writeString(s); err != nil {
		return 0, &recoverableError{err.Error()}
	}
	return 0, nil
}

// printStack implements ".s": depth, then the cached top f followed by every
// deeper stack cell, down to the bottom.
func (vm *VM) printStack() {
	depth := vm.vdepth()
	vm.writeString(fmt.Sprintf("%d: ", depth))
	if depth == 0 {
		return
	}
	vm.printCell(vm.f)
	vm.writeByte(' ')
	for s := vm.s; vm.vstart+1 < s; s-- {
		v, err := vm.img.load(s)
		if err != nil {
			break
		}
		vm.printCell(v)
		vm.writeByte(' ')
	}
	vm.writeByte('\n')
}

func (vm *VM) clockMillis() Cell {
	return Cell(time.Since(vm.startTime) / time.Millisecond)
}

// system runs a host shell command, the Go equivalent of the C library
// call "system". Like the original, the command's exit status becomes the
// result; a failure to even start the command is reported as a recoverable
// error instead.
func (vm *VM) system() (Cell, error) {
	s, err := vm.getString()
	if err != nil {
		return 0, err
	}
	cmd := exec.Command("sh", "-c", s)
	cmd.Stdout = vm.out
	cmd.Stderr = vm.out
	runErr := cmd.Run()
	if runErr == nil {
		return 0, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return Cell(exitErr.ExitCode()), nil
	}
	return 0, &recoverableError{fmt.Sprintf("system: %v", runErr)}
}

// doFOpen implements OPEN-FILE's ( addr len fam -- handle ) stack contract.
func (vm *VM) doFOpen() (Cell, error) {
	fam := fileAccessMode(vm.f)
	if fam >= lastFAM {
		return 0, &recoverableError{"invalid file access method"}
	}
	if _, err := vm.vpop(); err != nil { // f becomes length
		return 0, err
	}
	name, err := vm.getString()
	if err != nil {
		return 0, err
	}
	return vm.fopen(name, fam)
}

// doFRead implements READ-FILE's ( offset count handle -- count' status ).
func (vm *VM) doFRead() error {
	hc := vm.f
	count, err := vm.popAddr()
	if err != nil {
		return err
	}
	offset, err := vm.popAddr()
	if err != nil {
		return err
	}
	buf := make([]byte, count)
	n, rerr := vm.fread(hc, buf)
	for i := 0; i < n; i++ {
		if err := vm.img.storeByte(offset+Cell(i), buf[i]); err != nil {
			return err
		}
	}
	if err := vm.pushRaw(Cell(n)); err != nil {
		return err
	}
	if rerr != nil {
		return rerr
	}
	vm.f = 0
	return nil
}

// doFWrite implements WRITE-FILE's ( offset count handle -- count' status ).
func (vm *VM) doFWrite() error {
	hc := vm.f
	count, err := vm.popAddr()
	if err != nil {
		return err
	}
	offset, err := vm.popAddr()
	if err != nil {
		return err
	}
	buf := make([]byte, count)
	for i := range buf {
		b, err := vm.img.loadByte(offset + Cell(i))
		if err != nil {
			return err
		}
		buf[i] = b
	}
	n, rerr := vm.fwrite(hc, buf)
	if err := vm.pushRaw(Cell(n)); err != nil {
		return err
	}
	if rerr != nil {
		return rerr
	}
	vm.f = 0
	return nil
}

// doFRename implements RENAME-FILE. The original reuses the file-access-mode
// decoder to produce the new name, one of "wb"/"rb"/"r+b" — an odd but
// faithfully reproduced quirk of the source this was modeled on.
func (vm *VM) doFRename() error {
	fam := fileAccessMode(vm.f)
	if fam >= lastFAM {
		return &recoverableError{"invalid file access method"}
	}
	newName, _, err := fam.osMode()
	if err != nil {
		return &recoverableError{err.Error()}
	}
	if _, err := vm.vpop(); err != nil { // f becomes length of old name
		return err
	}
	oldName, err := vm.getString()
	if err != nil {
		return err
	}
	if err := vm.frename(oldName, newName); err != nil {
		return err
	}
	vm.f = 0
	return nil
}
