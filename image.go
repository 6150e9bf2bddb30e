package forth

import "fmt"

// image is the single contiguous cell array backing a VM: registers, parse
// buffer, dictionary, and both stacks all live inside it, exactly as
// SPEC_FULL §3 lays out. It is allocated once, at the size requested by the
// host, and never grows — every dynamic allocation during a run is bump
// allocation against a register (DIC, or a stack pointer), never a Go slice
// append.
type image struct {
	cells []Cell
}

func newImage(size Cell) (*image, error) {
	if size < minimumCoreSize {
		return nil, fmt.Errorf("forth: core size %d below minimum %d", size, minimumCoreSize)
	}
	return &image{cells: make([]Cell, size)}, nil
}

func (m *image) size() Cell { return Cell(len(m.cells)) }

func (m *image) inBounds(addr Cell) bool { return addr < m.size() }

func (m *image) load(addr Cell) (Cell, error) {
	if !m.inBounds(addr) {
		return 0, &fatalError{fmt.Sprintf("address %d out of bounds", addr)}
	}
	return m.cells[addr], nil
}

func (m *image) store(addr Cell, v Cell) error {
	if !m.inBounds(addr) {
		return &fatalError{fmt.Sprintf("address %d out of bounds", addr)}
	}
	m.cells[addr] = v
	return nil
}

// loadByte and storeByte address the image as a flat byte array, each cell
// decomposed little-endian regardless of host order; CLOAD/CSTORE only need
// to be self-consistent within one running image, so a fixed internal
// convention keeps them portable without resorting to unsafe pointer casts.
func (m *image) loadByte(baddr Cell) (byte, error) {
	addr := baddr / cellSize
	off := baddr % cellSize
	c, err := m.load(addr)
	if err != nil {
		return 0, err
	}
	return byte(c >> (8 * off)), nil
}

func (m *image) storeByte(baddr Cell, v byte) error {
	addr := baddr / cellSize
	off := baddr % cellSize
	c, err := m.load(addr)
	if err != nil {
		return err
	}
	shift := 8 * off
	c = (c &^ (Cell(0xff) << shift)) | (Cell(v) << shift)
	return m.store(addr, c)
}

// readCString reads a NUL-terminated string starting at the given byte
// address, matching how PRINT treats a Forth address as a plain C string.
func (m *image) readCString(addr Cell) (string, error) {
	var b []byte
	for i := Cell(0); ; i++ {
		c, err := m.loadByte(addr + i)
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
		if Cell(len(b)) > m.size()*cellSize {
			return "", &fatalError{"unterminated string"}
		}
	}
}

// readCStringN reads a string at addr and requires the NUL terminator to
// fall exactly at addr+length, the ASCIIZ check the original performs
// whenever a Forth (address length) pair is converted to a C string.
func (m *image) readCStringN(addr, length Cell) (string, error) {
	c, err := m.loadByte(addr + length)
	if err != nil {
		return "", err
	}
	if c != 0 {
		return "", &recoverableError{"not an ASCIIZ string"}
	}
	return m.readCString(addr)
}

func (m *image) reg(r Cell) Cell {
	v, _ := m.load(r)
	return v
}

func (m *image) setReg(r Cell, v Cell) { _ = m.store(r, v) }
