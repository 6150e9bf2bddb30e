package forth

import (
	"context"
	"fmt"
	"io"
	"os"
)

// restartSignal implements the RESTART primitive: Forth code can force the
// interpreter back to its top-level error handling exactly as if one of the
// built-in error conditions (ok/fatal/recoverable) had just occurred, without
// printing a diagnostic of its own.
type restartSignal struct{ code Cell }

func (restartSignal) Error() string { return "restart" }

const (
	restartOK          Cell = 0
	restartFatal       Cell = 1
	restartRecoverable Cell = 2
)

// run drives the inner interpreter until the instruction stream returns to a
// zero cell (a clean stop) or an unrecoverable error poisons the instance. It
// mirrors the setjmp/longjmp error-recovery loop at the top of the classic
// virtual machine: every recoverable error resets the return stack and starts
// the dispatch loop again from the INSTRUCTION register.
func (vm *VM) run(ctx context.Context) error {
	if vm.invalid() {
		return &fatalError{"refusing to run an invalid forth"}
	}
	for {
		// f is re-read from the TOP register on every attempt, including
		// retries after a recoverable error, matching forth_run's f
		// initializer running again each time control returns here by
		// longjmp. It is only written back on a clean, successful exit.
		vm.f = vm.img.reg(regTOP)
		err := vm.runOnce(ctx)
		if err == nil {
			vm.img.setReg(regTOP, vm.f)
			return nil
		}
		if vm.invalid() {
			return err
		}
		switch e := err.(type) {
		case restartSignal:
			switch e.code {
			case restartOK:
				continue
			case restartRecoverable:
				if stop, rerr := vm.recoverableErrorAction(nil); stop {
					return rerr
				}
				continue
			default:
				vm.invalidate()
				return &fatalError{"restart"}
			}
		case *fatalError:
			vm.invalidate()
			return e
		case *recoverableError:
			fmt.Fprint(vm.errWriter(), diagnostic("error", "%s", e.msg))
			if stop, rerr := vm.recoverableErrorAction(e); stop {
				return rerr
			}
			continue
		default:
			return err
		}
	}
}

// recoverableErrorAction applies ERROR_HANDLER's disposition. It returns
// stop=true when the caller should return rerr instead of looping again.
func (vm *VM) recoverableErrorAction(e error) (stop bool, rerr error) {
	switch errorHandlerMode(vm.img.reg(regERRORHANDLER)) {
	case errorInvalidate:
		vm.invalidate()
		return true, e
	case errorHalt:
		return true, e
	default: // errorRecover
		vm.img.setReg(regRSTK, vm.rstart)
		return false, nil
	}
}

func (vm *VM) errWriter() io.Writer {
	if vm.out != nil {
		vm.out.Flush()
	}
	return os.Stderr
}

// runOnce executes the classic `for(;(pc = m[I++]);) INNER: switch(op)...`
// loop a single time, returning whatever error (if any) ended it. A nil
// return means the instruction stream reached a zero cell cleanly.
func (vm *VM) runOnce(ctx context.Context) error {
	m := vm.img
	I := m.reg(regINSTRUCTION)

	for {
		select {
		case <-ctx.Done():
			vm.invalidate()
			return ctx.Err()
		default:
		}

		pcCell, err := m.load(I)
		if err != nil {
			return err
		}
		I++
		if pcCell == 0 {
			return nil
		}
		pc := pcCell

	inner:
		misc, err := m.load(pc)
		if err != nil {
			return err
		}
		pc++
		op := opcode(instructionOf(misc))
		vm.trace("pc=%d I=%d op=%s depth=%d", pc-1, I, op, vm.vdepth())

		switch op {
		case opPUSH:
			v, err := m.load(I)
			if err != nil {
				return err
			}
			I++
			if err := vm.vpush(v); err != nil {
				return err
			}
		case opCOMPILE:
			d := m.reg(regDIC)
			if err := m.store(d, pc); err != nil {
				return err
			}
			m.setReg(regDIC, d+1)
		case opRUN:
			if err := vm.rpush(I); err != nil {
				return err
			}
			I = pc
		case opDEFINE:
			m.setReg(regSTATE, 1)
			name, err := vm.readWord()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err := vm.compile(opCOMPILE, name); err != nil {
				return err
			}
			d := m.reg(regDIC)
			if err := m.store(d, Cell(opRUN)); err != nil {
				return err
			}
			m.setReg(regDIC, d+1)
		case opIMMEDIATE:
			d := m.reg(regDIC) - 2
			misc, err := m.load(d)
			if err != nil {
				return err
			}
			misc = (misc &^ Cell(instructionMask)) | Cell(opRUN)
			if err := m.store(d, misc); err != nil {
				return err
			}
			m.setReg(regDIC, d+1)
		case opREAD:
			name, err := vm.readWord()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			w, ferr := vm.find(name)
			if ferr != nil {
				return ferr
			}
			if w > 1 {
				pc = w
				instr, err := m.load(pc)
				if err != nil {
					return err
				}
				if m.reg(regSTATE) == 0 && opcode(instructionOf(instr)) == opCOMPILE {
					pc++
				}
				goto inner
			}
			n, ok := numberify(m.reg(regBASE), name)
			if !ok {
				return &recoverableError{fmt.Sprintf("%s is not a word", name)}
			}
			if m.reg(regSTATE) != 0 {
				d := m.reg(regDIC)
				if err := m.store(d, 2); err != nil {
					return err
				}
				if err := m.store(d+1, n); err != nil {
					return err
				}
				m.setReg(regDIC, d+2)
			} else {
				if err := vm.vpush(n); err != nil {
					return err
				}
			}
		case opLOAD:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			v, err := m.load(vm.f)
			if err != nil {
				return err
			}
			vm.f = v
		case opSTORE:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			if err := m.store(vm.f, v); err != nil {
				return err
			}
			vm.f, err = vm.popAddr()
			if err != nil {
				return err
			}
		case opCLOAD:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			b, err := m.loadByte(vm.f)
			if err != nil {
				return err
			}
			vm.f = Cell(b)
		case opCSTORE:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			if err := m.storeByte(vm.f, byte(v)); err != nil {
				return err
			}
			vm.f, err = vm.popAddr()
			if err != nil {
				return err
			}
		case opSUB:
			if err := vm.binop(func(a, b Cell) Cell { return a - b }); err != nil {
				return err
			}
		case opADD:
			if err := vm.binop(func(a, b Cell) Cell { return a + b }); err != nil {
				return err
			}
		case opAND:
			if err := vm.binop(func(a, b Cell) Cell { return a & b }); err != nil {
				return err
			}
		case opOR:
			if err := vm.binop(func(a, b Cell) Cell { return a | b }); err != nil {
				return err
			}
		case opXOR:
			if err := vm.binop(func(a, b Cell) Cell { return a ^ b }); err != nil {
				return err
			}
		case opINV:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			vm.f = ^vm.f
		case opSHL:
			if err := vm.binop(func(a, b Cell) Cell { return a << b }); err != nil {
				return err
			}
		case opSHR:
			if err := vm.binop(func(a, b Cell) Cell { return a >> b }); err != nil {
				return err
			}
		case opMUL:
			if err := vm.binop(func(a, b Cell) Cell { return a * b }); err != nil {
				return err
			}
		case opDIV:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			if vm.f == 0 {
				return &recoverableError{"divide by zero"}
			}
			if err := vm.binop(func(a, b Cell) Cell { return a / b }); err != nil {
				return err
			}
		case opULESS:
			if err := vm.binopBool(func(a, b Cell) bool { return a < b }); err != nil {
				return err
			}
		case opUMORE:
			if err := vm.binopBool(func(a, b Cell) bool { return a > b }); err != nil {
				return err
			}
		case opSLESS:
			if err := vm.binopBool(func(a, b Cell) bool { return a.signed() < b.signed() }); err != nil {
				return err
			}
		case opSMORE:
			if err := vm.binopBool(func(a, b Cell) bool { return a.signed() > b.signed() }); err != nil {
				return err
			}
		case opEXIT:
			r, err := vm.rpop()
			if err != nil {
				return err
			}
			I = r
		case opEMIT:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			b := byte(vm.f)
			if err := vm.writeByte(b); err != nil {
				return &recoverableError{err.Error()}
			}
			vm.f = Cell(b)
		case opKEY:
			c, err := vm.readChar()
			if err != nil {
				return err
			}
			if err := vm.vpush(c); err != nil {
				return err
			}
		case opFROMR:
			r, err := vm.rpop()
			if err != nil {
				return err
			}
			if err := vm.vpush(r); err != nil {
				return err
			}
		case opTOR:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			v, err := vm.vpop()
			if err != nil {
				return err
			}
			if err := vm.rpush(v); err != nil {
				return err
			}
		case opBRANCH:
			off, err := m.load(I)
			if err != nil {
				return err
			}
			I += off
		case opQBRANCH:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			if vm.f == 0 {
				off, err := m.load(I)
				if err != nil {
					return err
				}
				I += off
			} else {
				I++
			}
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			vm.f = v
		case opPNUM:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			status, err := vm.printCell(vm.f)
			if err != nil {
				return err
			}
			vm.f = status
		case opQUOTE:
			v, err := m.load(I)
			if err != nil {
				return err
			}
			I++
			if err := vm.vpush(v); err != nil {
				return err
			}
		case opCOMMA:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			d := m.reg(regDIC)
			if err := m.store(d, vm.f); err != nil {
				return err
			}
			m.setReg(regDIC, d+1)
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			vm.f = v
		case opEQUAL:
			if err := vm.binopBool(func(a, b Cell) bool { return a == b }); err != nil {
				return err
			}
		case opSWAP:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			w := vm.f
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			vm.f = v
			if err := vm.pushRaw(w); err != nil {
				return err
			}
		case opDUP:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			if err := vm.vpush(vm.f); err != nil {
				return err
			}
		case opDROP:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			vm.f = v
		case opOVER:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			w, err := m.load(vm.s)
			if err != nil {
				return err
			}
			if err := vm.vpush(vm.f); err != nil {
				return err
			}
			vm.f = w
		case opTAIL:
			// Unlike every other return-stack op, TAIL decrements RSTK with
			// no bounds check: the outer read-loop's own call frame is
			// always discarded here one instruction before RUN immediately
			// re-pushes at the same slot, so the register is never actually
			// read while transiently "underflowed".
			m.setReg(regRSTK, m.reg(regRSTK)-1)
		case opBSAVE:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			id := vm.f
			addr, err := vm.popAddr()
			if err != nil {
				return err
			}
			res, err := vm.bsave(id, addr)
			if err != nil {
				return err
			}
			vm.f = res
		case opBLOAD:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			id := vm.f
			addr, err := vm.popAddr()
			if err != nil {
				return err
			}
			res, err := vm.bload(id, addr)
			if err != nil {
				return err
			}
			vm.f = res
		case opFIND:
			if err := vm.vpush(vm.f); err != nil {
				return err
			}
			name, err := vm.readWord()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			w, err := vm.find(name)
			if err != nil {
				return err
			}
			if w < dictionaryStart {
				w = 0
			}
			vm.f = w
		case opPRINT:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			s, err := m.readCString(vm.f)
			if err != nil {
				return err
			}
			if err := vm.writeString(s); err != nil {
				return &recoverableError{err.Error()}
			}
			v, err := vm.popAddr()
			if err != nil {
				return err
			}
			vm.f = v
		case opDEPTH:
			d := vm.vdepth()
			if err := vm.vpush(vm.f); err != nil {
				return err
			}
			vm.f = d
		case opCLOCK:
			if err := vm.vpush(vm.f); err != nil {
				return err
			}
			vm.f = vm.clockMillis()
		case opEVALUATE:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			if err := vm.evaluateWord(); err != nil {
				return err
			}
		case opPSTK:
			vm.printStack()
		case opRESTART:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			return restartSignal{vm.f}
		case opSYSTEM:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			res, err := vm.system()
			if err != nil {
				return err
			}
			vm.f = res
		case opFCLOSE:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			if err := vm.fclose(vm.f); err != nil {
				return err
			}
			vm.f = 0
		case opFOPEN:
			if err := vm.checkDepth(3); err != nil {
				return err
			}
			res, err := vm.doFOpen()
			if err != nil {
				return err
			}
			vm.f = res
		case opFDELETE:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			name, err := vm.getString()
			if err != nil {
				return err
			}
			if err := vm.fdelete(name); err != nil {
				return err
			}
			vm.f = 0
		case opFREAD:
			if err := vm.checkDepth(3); err != nil {
				return err
			}
			if err := vm.doFRead(); err != nil {
				return err
			}
		case opFWRITE:
			if err := vm.checkDepth(3); err != nil {
				return err
			}
			if err := vm.doFWrite(); err != nil {
				return err
			}
		case opFPOS:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			pos, err := vm.fpos(vm.f)
			if err != nil {
				return err
			}
			vm.f = pos
		case opFSEEK:
			if err := vm.checkDepth(2); err != nil {
				return err
			}
			hc := vm.f
			pos, err := vm.popAddr()
			if err != nil {
				return err
			}
			if err := vm.fseek(hc, pos); err != nil {
				return err
			}
			vm.f = 0
		case opFFLUSH:
			if err := vm.checkDepth(1); err != nil {
				return err
			}
			if err := vm.fflush(vm.f); err != nil {
				return err
			}
			vm.f = 0
		case opFRENAME:
			if err := vm.checkDepth(3); err != nil {
				return err
			}
			if err := vm.doFRename(); err != nil {
				return err
			}
		default:
			return &fatalError{fmt.Sprintf("illegal-op %d", op)}
		}
		continue
	}
}

func (vm *VM) checkDepth(n Cell) error {
	if vm.vdepth() < n {
		return &recoverableError{"stack underflow"}
	}
	if vm.s > vm.vend {
		return &recoverableError{"stack overflow"}
	}
	return nil
}

func (vm *VM) binop(f func(a, b Cell) Cell) error {
	if err := vm.checkDepth(2); err != nil {
		return err
	}
	v, err := vm.popAddr()
	if err != nil {
		return err
	}
	vm.f = f(v, vm.f)
	return nil
}

func (vm *VM) binopBool(f func(a, b Cell) bool) error {
	if err := vm.checkDepth(2); err != nil {
		return err
	}
	v, err := vm.popAddr()
	if err != nil {
		return err
	}
	if f(v, vm.f) {
		vm.f = 1
	} else {
		vm.f = 0
	}
	return nil
}
