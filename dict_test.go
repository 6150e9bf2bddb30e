package forth

import (
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFindHide(t *testing.T) {
	vm := New(WithOutput(ioutil.Discard))

	require.NoError(t, vm.compile(opPUSH, "probe-word"))

	addr, err := vm.find("probe-word")
	require.NoError(t, err)
	require.NotZero(t, addr, "freshly compiled word must be findable")

	addrFold, err := vm.find("PROBE-WORD")
	require.NoError(t, err)
	assert.Equal(t, addr, addrFold, "find must be case-insensitive")

	require.NoError(t, vm.hide(addr))

	hidden, err := vm.find("probe-word")
	require.NoError(t, err)
	assert.Zero(t, hidden, "a hidden word must not be found")

	require.NoError(t, vm.hide(addr)) // toggling twice unhides it again
	visible, err := vm.find("probe-word")
	require.NoError(t, err)
	assert.Equal(t, addr, visible, "toggling hide twice must restore visibility")
}

func TestFindUnknownWord(t *testing.T) {
	vm := New(WithOutput(ioutil.Discard))
	addr, err := vm.find("no-such-word-defined-anywhere")
	require.NoError(t, err)
	assert.Zero(t, addr)
}
