package serialrelay

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame(t *testing.T) {
	tests := []struct {
		name     string
		channel  int
		on       bool
		expected []byte
	}{
		{"Channel1On", 1, true, []byte{0xA0, 0x01, 0x01, 0xA2}},
		{"Channel1Off", 1, false, []byte{0xA0, 0x01, 0x00, 0xA1}},
		{"Channel4On", 4, true, []byte{0xA0, 0x04, 0x01, 0xA5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Frame(tt.channel, tt.on))
		})
	}
}

func TestOutput(t *testing.T) {
	var buf bytes.Buffer
	b := New(&buf, 2, nil)

	pin, err := b.Output(1)
	require.NoError(t, err)

	pin.Set(true)
	assert.Equal(t, []byte{0xA0, 0x02, 0x01, 0xA3}, buf.Bytes())

	_, err = b.Output(2)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}
