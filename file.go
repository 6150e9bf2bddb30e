package forth

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// fileAccessMode mirrors the classic fams enumeration exactly: WO=0, RO=1,
// RW=2. FOPEN rejects any other mode cell before touching the filesystem.
type fileAccessMode Cell

const (
	famWO fileAccessMode = iota
	famRO
	famRW
	lastFAM
)

func (fam fileAccessMode) osMode() (string, int, error) {
	switch fam {
	case famWO:
		return "wb", os.O_WRONLY | os.O_CREATE | os.O_TRUNC, nil
	case famRO:
		return "rb", os.O_RDONLY, nil
	case famRW:
		return "r+b", os.O_RDWR, nil
	default:
		return "", 0, fmt.Errorf("unknown file access mode %d", fam)
	}
}

// handle is a host-side resource a VM refers to only by an opaque Cell, so
// that the image itself never carries raw pointers and stays serializable
// (SPEC_FULL §4.9 / §9's "portable re-implementations should keep a side
// table" note).
type handle struct {
	r      io.Reader
	w      io.Writer
	c      io.Closer
	br     *bufio.Reader
	opened bool // true if this VM opened (and therefore owns) the underlying file
}

// handleTable assigns small, monotonically increasing cell values to host
// resources. Values start above any address a register or dictionary cell
// could otherwise hold so a handle can never be mistaken for a memory
// address.
type handleTable struct {
	next    Cell
	entries map[Cell]*handle
}

const handleBase Cell = 1 << 32

func newHandleTable() *handleTable {
	return &handleTable{next: handleBase, entries: map[Cell]*handle{}}
}

func (ht *handleTable) add(h *handle) Cell {
	c := ht.next
	ht.next++
	ht.entries[c] = h
	return c
}

func (ht *handleTable) get(c Cell) (*handle, bool) {
	h, ok := ht.entries[c]
	return h, ok
}

func (ht *handleTable) remove(c Cell) { delete(ht.entries, c) }

func (h *handle) reader() *bufio.Reader {
	if h.br == nil {
		h.br = bufio.NewReader(h.r)
	}
	return h.br
}

// fopen implements the FOPEN primitive: open a named file in the given
// access mode and return a new handle cell, or a recoverable error.
func (vm *VM) fopen(name string, fam fileAccessMode) (Cell, error) {
	_, flag, err := fam.osMode()
	if err != nil {
		return 0, &recoverableError{err.Error()}
	}
	perm := os.FileMode(0644)
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return 0, &recoverableError{fmt.Sprintf("open-file %q: %v", name, err)}
	}
	h := &handle{r: f, w: f, c: f, opened: true}
	return vm.handles.add(h), nil
}

func (vm *VM) fclose(hc Cell) error {
	h, ok := vm.handles.get(hc)
	if !ok {
		return &recoverableError{fmt.Sprintf("close-file: unknown handle %d", hc)}
	}
	vm.handles.remove(hc)
	if h.opened && h.c != nil {
		if err := h.c.Close(); err != nil {
			return &recoverableError{fmt.Sprintf("close-file: %v", err)}
		}
	}
	return nil
}

func (vm *VM) fread(hc Cell, buf []byte) (int, error) {
	h, ok := vm.handles.get(hc)
	if !ok || h.r == nil {
		return 0, &recoverableError{fmt.Sprintf("read-file: unknown handle %d", hc)}
	}
	n, err := io.ReadFull(h.reader(), buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return n, &recoverableError{fmt.Sprintf("read-file: %v", err)}
	}
	return n, nil
}

func (vm *VM) fwrite(hc Cell, buf []byte) (int, error) {
	h, ok := vm.handles.get(hc)
	if !ok || h.w == nil {
		return 0, &recoverableError{fmt.Sprintf("write-file: unknown handle %d", hc)}
	}
	n, err := h.w.Write(buf)
	if err != nil {
		return n, &recoverableError{fmt.Sprintf("write-file: %v", err)}
	}
	return n, nil
}

func (vm *VM) fflush(hc Cell) error {
	h, ok := vm.handles.get(hc)
	if !ok {
		return &recoverableError{fmt.Sprintf("flush-file: unknown handle %d", hc)}
	}
	if f, ok := h.c.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return &recoverableError{fmt.Sprintf("flush-file: %v", err)}
		}
	}
	return nil
}

func (vm *VM) fpos(hc Cell) (Cell, error) {
	h, ok := vm.handles.get(hc)
	if !ok {
		return 0, &recoverableError{fmt.Sprintf("file-position: unknown handle %d", hc)}
	}
	f, ok := h.c.(*os.File)
	if !ok {
		return 0, &recoverableError{"file-position: not seekable"}
	}
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, &recoverableError{fmt.Sprintf("file-position: %v", err)}
	}
	h.br = nil
	return Cell(pos), nil
}

func (vm *VM) fseek(hc Cell, pos Cell) error {
	h, ok := vm.handles.get(hc)
	if !ok {
		return &recoverableError{fmt.Sprintf("reposition-file: unknown handle %d", hc)}
	}
	f, ok := h.c.(*os.File)
	if !ok {
		return &recoverableError{"reposition-file: not seekable"}
	}
	if _, err := f.Seek(int64(pos), io.SeekStart); err != nil {
		return &recoverableError{fmt.Sprintf("reposition-file: %v", err)}
	}
	h.br = nil
	return nil
}

func (vm *VM) fdelete(name string) error {
	if err := os.Remove(name); err != nil {
		return &recoverableError{fmt.Sprintf("delete-file: %v", err)}
	}
	return nil
}

func (vm *VM) frename(oldName, newName string) error {
	if err := os.Rename(oldName, newName); err != nil {
		return &recoverableError{fmt.Sprintf("rename-file: %v", err)}
	}
	return nil
}

// blockName formats the canonical block-file name for a block number:
// lowercase, four hex digits, ".blk" suffix.
func blockName(id Cell) string { return fmt.Sprintf("%04x.blk", id&0xffff) }

// bsave writes 1024 bytes from the image, starting at addr, to the block
// file named after id. The window is space-padded to a full block if the
// final partial cell does not cleanly fill it.
func (vm *VM) bsave(id, addr Cell) (Cell, error) {
	if addr+Cell(blockSize)/cellSize > vm.img.size() {
		return 0, &recoverableError{"bsave: block window exceeds core"}
	}
	buf := make([]byte, blockSize)
	for i := range buf {
		b, err := vm.img.loadByte(addr*cellSize + Cell(i))
		if err != nil {
			return 0, err
		}
		buf[i] = b
	}
	f, err := os.OpenFile(blockName(id), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return 0, &recoverableError{fmt.Sprintf("bsave: %v", err)}
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return 0, &recoverableError{fmt.Sprintf("bsave: %v", err)}
	}
	return 0, nil
}

// bload reads up to 1024 bytes from the block file named after id into the
// image starting at addr, zero-padding any bytes past a short file.
func (vm *VM) bload(id, addr Cell) (Cell, error) {
	if addr+Cell(blockSize)/cellSize > vm.img.size() {
		return 0, &recoverableError{"bload: block window exceeds core"}
	}
	buf := make([]byte, blockSize)
	f, err := os.Open(blockName(id))
	if err != nil {
		return 0, &recoverableError{fmt.Sprintf("bload: %v", err)}
	}
	defer f.Close()
	io.ReadFull(f, buf) // short/EOF reads leave the remainder zeroed
	for i, b := range buf {
		if err := vm.img.storeByte(addr*cellSize+Cell(i), b); err != nil {
			return 0, err
		}
	}
	return 0, nil
}
