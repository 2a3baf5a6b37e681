package cellfmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutReadRoundTrip(t *testing.T) {
	b := make([]byte, 32)
	PutU16(b, 0, 0xBEEF)
	PutU32(b, 4, 0xDEADBEEF)
	PutI32(b, 8, -12345)
	PutU64(b, 16, 0x0123456789ABCDEF)

	assert.Equal(t, uint16(0xBEEF), ReadU16(b, 0))
	assert.Equal(t, uint32(0xDEADBEEF), ReadU32(b, 4))
	assert.Equal(t, int32(-12345), ReadI32(b, 8))
	assert.Equal(t, uint64(0x0123456789ABCDEF), ReadU64(b, 16))
}

// A STRING leaf cell's data area is UTF-16LE; EncodeString/DecodeString
// round-trip through it the same way a class library boxing native text
// would.
func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "hello", "héllo wörld", "日本語"} {
		encoded, err := EncodeString(s)
		require.NoError(t, err)

		decoded, err := DecodeString(encoded)
		require.NoError(t, err)
		assert.Equal(t, s, decoded)
	}
}

func TestStringFitsInAllocatedCell(t *testing.T) {
	arena := make([]byte, 256)
	encoded, err := EncodeString("persistent object heap")
	require.NoError(t, err)

	h, err := InitAllocated(arena, 0, uint32(Align8(HeaderSize+len(encoded))))
	require.NoError(t, err)
	h.Flags |= FlagString
	require.NoError(t, WriteHeader(arena, 0, h))

	data, err := Data(arena, 0, h)
	require.NoError(t, err)
	copy(data, encoded)

	decoded, err := DecodeString(data[:len(encoded)])
	require.NoError(t, err)
	assert.Equal(t, "persistent object heap", decoded)
}
