package forth

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadCoreRoundTrip(t *testing.T) {
	vm := New(WithCoreSize(minimumCoreSize), WithOutput(ioutil.Discard))
	require.NoError(t, vm.Eval(context.Background(), "42"))
	require.Equal(t, Cell(42), vm.f, "a clean run syncs f into TOP before returning")

	var buf bytes.Buffer
	require.NoError(t, vm.SaveCore(&buf))

	vm2, err := LoadCore(&buf, WithOutput(ioutil.Discard))
	require.NoError(t, err)
	assert.Equal(t, Cell(42), vm2.f, "TOP register must round-trip through save/load")
	assert.Equal(t, vm2.vstart, vm2.s, "a loaded core always starts with an empty stack window, per forth_make_default")
	assert.False(t, vm2.Invalid())
	assert.Equal(t, vm.img.size(), vm2.img.size())
}

func TestLoadCoreRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(make([]byte, headerSize+8))
	_, err := LoadCore(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad magic")
}

func TestLoadCoreRejectsWrongVersion(t *testing.T) {
	h := makeHeader()
	h[5] = coreVersion + 1
	var buf bytes.Buffer
	buf.Write(h[:])
	writeFakeCore(&buf, minimumCoreSize)

	_, err := LoadCore(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestLoadCoreRejectsWrongCellSize(t *testing.T) {
	h := makeHeader()
	h[4] = cellSize + 1
	var buf bytes.Buffer
	buf.Write(h[:])
	writeFakeCore(&buf, minimumCoreSize)

	_, err := LoadCore(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell size")
}

func TestLoadCoreRejectsUndersizedCore(t *testing.T) {
	h := makeHeader()
	var buf bytes.Buffer
	buf.Write(h[:])
	writeFakeCore(&buf, minimumCoreSize-1)

	_, err := LoadCore(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below minimum")
}

func writeFakeCore(buf *bytes.Buffer, size Cell) {
	var sizeBuf [8]byte
	nativeOrder().PutUint64(sizeBuf[:], uint64(size))
	buf.Write(sizeBuf[:])
	buf.Write(make([]byte, int(size)*cellSize))
}
