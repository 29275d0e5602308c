package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendVarintKnownValues(t *testing.T) {
	require.Equal(t, []byte{0xac, 0x02}, AppendVarint(nil, 300))
	require.Equal(t, []byte{0x00}, AppendVarint(nil, 0))
	require.Equal(t, []byte{0x7f}, AppendVarint(nil, 127))
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 16383, 16384, 1<<32 - 1, 1 << 32, 1<<63 - 1, 1 << 63, ^uint64(0)}
	for _, v := range values {
		encoded := AppendVarint(nil, v)
		require.LessOrEqual(t, len(encoded), MaxVarintLen)
		decoded, n, err := ReadVarint(encoded)
		require.NoError(t, err)
		require.Equal(t, len(encoded), n)
		require.Equal(t, v, decoded)
	}
}

func TestReadVarintRejectsOverlong(t *testing.T) {
	overlong := make([]byte, MaxVarintLen+1)
	for i := range overlong {
		overlong[i] = 0x80
	}
	_, _, err := ReadVarint(overlong)
	require.ErrorIs(t, err, ErrMalformedVarint)

	_, _, err = ReadVarint([]byte{0x80, 0x80})
	require.ErrorIs(t, err, ErrMalformedVarint)
}

func TestTagIdentity(t *testing.T) {
	fieldNumbers := []int{1, 2, 15, 16, 127, 2047, 1 << 20, 1<<29 - 1}
	for _, f := range fieldNumbers {
		for _, wt := range []int{TypeVarint, TypeBytes} {
			tag := AppendTag(nil, f, wt)
			decoded, n, err := ReadVarint(tag)
			require.NoError(t, err)
			require.Equal(t, len(tag), n)
			require.Equal(t, f, int(decoded>>3))
			require.Equal(t, wt, int(decoded&7))
		}
	}
}

func TestDefaultValuesAreOmitted(t *testing.T) {
	var dst []byte
	dst = AppendUint(dst, 1, 0)
	dst = AppendInt32(dst, 2, 0)
	dst = AppendInt64(dst, 3, 0)
	dst = AppendString(dst, 4, "")
	dst = AppendBytes(dst, 5, nil)
	dst = AppendBool(dst, 6, false)
	require.Empty(t, dst)
}

func TestEmptyMessageFieldIsEmitted(t *testing.T) {
	dst := AppendMessage(nil, 3, nil)
	require.Equal(t, []byte{0x1a, 0x00}, dst)
}

func TestAppendInt32NegativeUsesUnsigned32(t *testing.T) {
	encoded := AppendInt32(nil, 1, -1)
	fields, err := ParseFields(encoded)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, uint64(0xffffffff), fields[0].Varint)
}

func TestParseFieldsRoundTrip(t *testing.T) {
	var msg []byte
	msg = AppendUint(msg, 1, 42)
	msg = AppendString(msg, 2, "hello")
	msg = AppendMessage(msg, 3, AppendUint(nil, 1, 7))
	msg = AppendBool(msg, 13, true)

	fields, err := ParseFields(msg)
	require.NoError(t, err)
	require.Len(t, fields, 4)

	require.Equal(t, uint64(42), FindField(fields, 1).Varint)
	require.Equal(t, "hello", string(FindField(fields, 2).Bytes))
	inner, err := ParseFields(FindField(fields, 3).Bytes)
	require.NoError(t, err)
	require.Equal(t, uint64(7), inner[0].Varint)
	require.Equal(t, uint64(1), FindField(fields, 13).Varint)
	require.Nil(t, FindField(fields, 99))
}

func TestParseFieldsSkipsFixedWidth(t *testing.T) {
	var msg []byte
	msg = AppendTag(msg, 9, 1)
	msg = append(msg, 0, 0, 0, 0, 0, 0, 0, 0)
	msg = AppendTag(msg, 10, 5)
	msg = append(msg, 0, 0, 0, 0)
	msg = AppendUint(msg, 1, 5)

	fields, err := ParseFields(msg)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, 1, fields[0].Num)
}

func TestParseFieldsTruncated(t *testing.T) {
	msg := AppendString(nil, 1, "hello")
	_, err := ParseFields(msg[:len(msg)-2])
	require.ErrorIs(t, err, ErrTruncated)
}
