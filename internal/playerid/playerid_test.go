package playerid

import (
	"testing"

	"github.com/bmizerany/assert"
)

func TestDecodeKnownID(t *testing.T) {
	accountID, ok := Decode(76561197960287930)
	assert.T(t, ok)
	assert.Equal(t, uint32(22202), accountID)
}

func TestEncodeKnownID(t *testing.T) {
	assert.Equal(t, uint64(76561197960287930), Encode(22202))
}

func TestEncodeZeroIsNone(t *testing.T) {
	assert.Equal(t, None, Encode(0))
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]uint64{
		"zero":             0,
		"none sentinel":    None,
		"bare account id":  22202,
		"zero account":     0x0110000100000000,
		"wrong universe":   0x0210000100000001,
		"clan account":     0x0170000000000001,
		"wrong instance":   0x0110000200000001,
		"all bits set":     ^uint64(0),
		"max account only": 0x00000000FFFFFFFF,
	}

	for name, id64 := range cases {
		t.Run(name, func(t *testing.T) {
			accountID, ok := Decode(id64)
			assert.Equal(t, false, ok)
			assert.Equal(t, uint32(0), accountID)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, accountID := range []uint32{1, 2, 22202, 1 << 31, ^uint32(0)} {
		decoded, ok := Decode(Encode(accountID))
		assert.T(t, ok)
		assert.Equal(t, accountID, decoded)
	}
}
