package forth

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentIndependentInstances fans out N independently constructed
// VMs, each compiling and running its own tiny program concurrently with the
// rest, and asserts that no instance observes another's dictionary, stack,
// or output — SPEC_FULL §5's "independent VMs may run in parallel freely"
// property.
func TestConcurrentIndependentInstances(t *testing.T) {
	const n = 8
	results := make([]string, n)

	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			var out bytes.Buffer
			vm := New(WithOutput(&out))
			defer vm.Close()

			src := fmt.Sprintf(": sq dup * ; %d sq . ", i)
			if err := vm.Eval(context.Background(), src); err != nil {
				return fmt.Errorf("instance %d: %w", i, err)
			}
			results[i] = strings.TrimSpace(out.String())
			return nil
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < n; i++ {
		assert.Equal(t, strconv.Itoa(i*i), results[i], "instance %d must compute its own square in isolation", i)
	}
}

// TestConcurrentInstancesDoNotShareDictionary compiles a distinct word per
// goroutine and checks that none leaks into a sibling instance's dictionary,
// ruling out any accidental package-level shared state in the compiler.
func TestConcurrentInstancesDoNotShareDictionary(t *testing.T) {
	const n = 6
	vms := make([]*VM, n)
	for i := range vms {
		vms[i] = New(WithOutput(ioutil.Discard))
	}

	var g errgroup.Group
	for i, vm := range vms {
		i, vm := i, vm
		g.Go(func() error {
			name := fmt.Sprintf("only-in-%d", i)
			return vm.compile(opPUSH, name)
		})
	}
	require.NoError(t, g.Wait())

	for i, vm := range vms {
		for j := range vms {
			addr, err := vm.find(fmt.Sprintf("only-in-%d", j))
			require.NoError(t, err)
			if i == j {
				assert.NotZero(t, addr, "instance %d must find its own word", i)
			} else {
				assert.Zero(t, addr, "instance %d must not see instance %d's word", i, j)
			}
		}
	}
}
