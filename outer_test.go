package forth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumberify(t *testing.T) {
	for _, tc := range []struct {
		name string
		base Cell
		s    string
		want Cell
		ok   bool
	}{
		{"decimal", 10, "42", 42, true},
		{"negative decimal", 10, "-1", ^Cell(0), true},
		{"hex", 16, "2a", 42, true},
		{"binary", 2, "101", 5, true},
		{"base one rejected", 1, "1", 0, false},
		{"base over 36 rejected", 37, "1", 0, false},
		{"empty string rejected", 10, "", 0, false},
		{"trailing junk rejected", 10, "12x", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v, ok := numberify(tc.base, tc.s)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, v)
			}
		})
	}
}

func TestIsSpaceByte(t *testing.T) {
	for _, b := range []byte{' ', '\t', '\n', '\r', '\v', '\f'} {
		assert.True(t, isSpaceByte(b), "byte %q must be space", b)
	}
	for _, b := range []byte{'a', '0', '-', 0} {
		assert.False(t, isSpaceByte(b), "byte %q must not be space", b)
	}
}
