package forth

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
	"unsafe"
)

// The on-disk image format mirrors the original's three-part layout: a fixed
// magic header, the core size, then the raw cell array, in that order, each
// encoded in whatever byte order the saving machine lives on. A header with
// a different cell width or endianness from this process is rejected rather
// than translated, exactly as the original reserves translation as an
// unimplemented possibility rather than something save/load themselves do.
const (
	headerMagic0 = 0xFF
	headerMagic1 = '4'
	headerMagic2 = 'T'
	headerMagic3 = 'H'
	headerMagic7 = 0xFF

	coreVersion = 2

	endianBig    = 0
	endianLittle = 1
)

const headerSize = 8

func nativeEndian() byte {
	var probe uint16 = 1
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return endianLittle
	}
	return endianBig
}

func byteOrderFor(endian byte) (binary.ByteOrder, error) {
	switch endian {
	case endianLittle:
		return binary.LittleEndian, nil
	case endianBig:
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("forth: unknown endianness tag %d", endian)
	}
}

func makeHeader() [headerSize]byte {
	return [headerSize]byte{
		headerMagic0, headerMagic1, headerMagic2, headerMagic3,
		cellSize, coreVersion, nativeEndian(), headerMagic7,
	}
}

// SaveCore serializes the image's header, size, and complete cell array to
// w, in a form LoadCore can later reconstruct into a runnable VM.
func (vm *VM) SaveCore(w io.Writer) error {
	header := makeHeader()
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	order := nativeOrder()
	var sizeBuf [8]byte
	order.PutUint64(sizeBuf[:], uint64(vm.img.size()))
	if _, err := w.Write(sizeBuf[:]); err != nil {
		return err
	}
	buf := make([]byte, cellSize)
	for _, c := range vm.img.cells {
		order.PutUint64(buf, uint64(c))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

func nativeOrder() binary.ByteOrder {
	order, _ := byteOrderFor(nativeEndian())
	return order
}

// LoadCore reconstructs a VM from a stream written by SaveCore, re-running
// the same host-side setup New would have applied (output, logging, file
// input/output registers) against the loaded image rather than a fresh one.
func LoadCore(r io.Reader, opts ...Option) (*VM, error) {
	var actual [headerSize]byte
	if _, err := io.ReadFull(r, actual[:]); err != nil {
		return nil, fmt.Errorf("forth: reading core header: %w", err)
	}
	expected := makeHeader()
	if actual[0] != expected[0] || actual[1] != expected[1] ||
		actual[2] != expected[2] || actual[3] != expected[3] ||
		actual[7] != expected[7] {
		return nil, fmt.Errorf("forth: not a core file (bad magic)")
	}
	if actual[4] != cellSize {
		return nil, fmt.Errorf("forth: core cell size %d incompatible with this build's %d", actual[4], cellSize)
	}
	if actual[5] != coreVersion {
		return nil, fmt.Errorf("forth: core version %d incompatible with this build's %d", actual[5], coreVersion)
	}
	order, err := byteOrderFor(actual[6])
	if err != nil {
		return nil, err
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return nil, fmt.Errorf("forth: reading core size: %w", err)
	}
	size := Cell(order.Uint64(sizeBuf[:]))
	if size < minimumCoreSize {
		return nil, fmt.Errorf("forth: core size %d below minimum %d", size, minimumCoreSize)
	}

	img := &image{cells: make([]Cell, size)}
	buf := make([]byte, cellSize)
	for i := range img.cells {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("forth: reading cell %d: %w", i, err)
		}
		img.cells[i] = Cell(order.Uint64(buf))
	}

	vm := &VM{img: img, startTime: time.Now(), handles: newHandleTable()}
	defaultOptions.apply(vm)
	Options(opts...).apply(vm)
	vm.img = img // withCoreSize (among the defaults) must not replace the loaded image
	vm.finishLoadInit()
	return vm, nil
}
