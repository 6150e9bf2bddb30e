package forth

import (
	"fmt"
	"io"
	"strconv"
)

// DumpCore writes a raw, human-readable snapshot of vm's state to w: every
// register by name, both stacks, and the dictionary decoded into word
// headers and bodies. It is grounded on the teacher's vmDumper pretty
// printer, adapted to this image's real register layout and word-header
// shape (name bytes below PWD, MISC one cell past PWD) in place of the
// teacher's own memory map.
//
// Unlike SaveCore, a DumpCore stream cannot be fed back into LoadCore — its
// only purpose is human inspection (the CLI's -dump flag), matching
// SPEC_FULL §4.8's "restored, distinct from save_core" note.
func (vm *VM) DumpCore(w io.Writer) error {
	d := &dumper{vm: vm, out: w, nameAt: map[Cell]string{}}
	d.scanWords()
	d.dump()
	return d.err
}

type dictEntry struct {
	pwd    Cell
	misc   Cell
	op     Cell
	length Cell
	name   string
	hidden bool
}

func (e dictEntry) nameStart() Cell { return e.pwd - e.length }

type dumper struct {
	vm     *VM
	out    io.Writer
	err    error
	words  []dictEntry // most recently defined first
	nameAt map[Cell]string
}

func (d *dumper) printf(format string, args ...interface{}) {
	if d.err != nil {
		return
	}
	_, d.err = fmt.Fprintf(d.out, format, args...)
}

func (d *dumper) dump() {
	d.printf("# core dump\n")
	d.printf("  cells: %d  cell-size: %d\n", d.vm.img.size(), cellSize)
	d.dumpRegisters()
	d.dumpStacks()
	d.dumpDictionary()
}

func (d *dumper) dumpRegisters() {
	d.printf("  registers:\n")
	for _, r := range registerNames {
		d.printf("    %-18s @%-6d = %d\n", r.name, r.reg, d.vm.img.reg(r.reg))
	}
}

func (d *dumper) dumpStacks() {
	vm := d.vm
	d.printf("  variable stack: window [%d,%d) depth %d top %d\n", vm.vstart, vm.vend, vm.vdepth(), vm.f)
	for s := vm.s; vm.vstart < s; s-- {
		v, err := vm.img.load(s)
		if err != nil {
			break
		}
		d.printf("    @%-6d %d\n", s, v)
	}
	rsp := vm.img.reg(regRSTK)
	d.printf("  return stack: window [%d,%d) depth %d\n", vm.rstart, vm.rend, rsp-vm.rstart)
	for r := rsp; vm.rstart < r; r-- {
		v, err := vm.img.load(r)
		if err != nil {
			break
		}
		d.printf("    @%-6d %d\n", r, v)
	}
}

// scanWords walks the PWD chain once, reading every header's MISC cell and
// name up front so dumpDictionary can look a body cell's target address up
// by name and know each entry's body bounds without re-walking the chain.
func (d *dumper) scanWords() {
	m := d.vm.img
	w := m.reg(regPWD)
	for w > dictionaryStart {
		misc, err := m.load(w + 1)
		if err != nil {
			break
		}
		length := wordLength(misc)
		name, nameErr := m.readName(w, length)
		if nameErr != nil {
			name = fmt.Sprintf("<unreadable: %v>", nameErr)
		}
		e := dictEntry{
			pwd:    w,
			misc:   w + 1,
			op:     instructionOf(misc),
			length: length,
			name:   name,
			hidden: wordHidden(misc),
		}
		d.words = append(d.words, e)
		d.nameAt[e.misc] = name
		next, err := m.load(w)
		if err != nil {
			break
		}
		w = next
	}
}

func (d *dumper) dumpDictionary() {
	d.printf("  dictionary (most recent first):\n")
	m := d.vm.img
	for i, e := range d.words {
		hidden := ""
		if e.hidden {
			hidden = " (hidden)"
		}
		d.printf("    @%-6d %-16q %s%s\n", e.misc, e.name, opcode(e.op), hidden)

		bodyStart := e.misc + 1
		bodyEnd := m.reg(regDIC)
		if i > 0 {
			bodyEnd = d.words[i-1].nameStart()
		}
		switch opcode(e.op) {
		case opDEFINE, opIMMEDIATE:
			// no body cell at all: the op itself is the MISC opcode.
			continue
		case opCOMPILE:
			// a primitive word has exactly one body cell: the raw opcode
			// it dispatches to. A colon definition's first body cell is
			// RUN, and its threaded body is printed by the loop below.
			if v, err := m.load(bodyStart); err == nil && opcode(v) != opRUN {
				d.printf("      %d (%s)\n", v, opcode(v))
				continue
			}
		}
		for addr := bodyStart; addr < bodyEnd; addr++ {
			v, err := m.load(addr)
			if err != nil {
				break
			}
			d.printf("      @%-6d %s\n", addr, d.formatBodyCell(v))
		}
	}
}

func (d *dumper) formatBodyCell(v Cell) string {
	if name, ok := d.nameAt[v]; ok {
		return fmt.Sprintf("%d (%s)", v, name)
	}
	return strconv.FormatUint(uint64(v), 10)
}
