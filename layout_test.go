package ctrlr_kinematics

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayoutSizes(t *testing.T) {
	tests := []struct {
		layout Layout
		size   int
	}{
		{FKRequestLayout, 48},
		{FKResponseLayout, 56},
		{IKRequestLayout, 48},
		{IKResponseLayout, 392},
		{LastPositionLayout, 48},
	}
	for _, tt := range tests {
		t.Run(tt.layout.Name, func(t *testing.T) {
			assert.Equal(t, tt.size, tt.layout.Size())
		})
	}
}

func TestLayoutEncode(t *testing.T) {
	t.Run("little-endian doubles in order", func(t *testing.T) {
		payload, err := FKRequestLayout.Encode(1, 2, 3, 4, 5, 6)
		require.NoError(t, err)
		require.Len(t, payload, 48)
		for i := 0; i < 6; i++ {
			got := math.Float64frombits(binary.LittleEndian.Uint64(payload[i*8:]))
			assert.Equal(t, float64(i+1), got)
		}
	})

	t.Run("wrong value count", func(t *testing.T) {
		_, err := IKRequestLayout.Encode(1, 2, 3)
		assert.Error(t, err)
	})

	t.Run("response layouts cannot be encoded", func(t *testing.T) {
		_, err := FKResponseLayout.Encode(1, 2, 3, 4, 5, 6)
		assert.Error(t, err)
	})
}

func TestLayoutDecode(t *testing.T) {
	t.Run("status then padding then values", func(t *testing.T) {
		payload := encodeReply(FKResponseLayout, 0, 0.5, 0, 0.8, 0, 0, 0)
		// padding bytes stay zero
		assert.Equal(t, []byte{0, 0, 0, 0}, payload[4:8])

		reply, err := FKResponseLayout.Decode(payload)
		require.NoError(t, err)
		assert.True(t, reply.OK())
		assert.Equal(t, []float64{0.5, 0, 0.8, 0, 0, 0}, reply.Values)
	})

	t.Run("negative status", func(t *testing.T) {
		reply, err := IKResponseLayout.Decode(encodeReply(IKResponseLayout, -3))
		require.NoError(t, err)
		assert.False(t, reply.OK())
		assert.Equal(t, int32(-3), reply.Status)
		assert.Len(t, reply.Values, 48)
	})

	t.Run("size mismatch", func(t *testing.T) {
		payload := encodeReply(FKResponseLayout, 0, 1, 2, 3, 4, 5, 6)
		_, err := FKResponseLayout.Decode(payload[:52])
		assert.Error(t, err)
		_, err = IKResponseLayout.Decode(payload)
		assert.Error(t, err)
	})
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, "ctrlr_coms_fkine", CmdForwardKinematics.String())
	assert.Equal(t, "ctrlr_coms_ikine", CmdInverseKinematics.String())
	assert.Equal(t, "command(99)", Command(99).String())
	assert.True(t, CmdGetLastPosition.Known())
	assert.False(t, Command(99).Known())
}
