package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStuffUnstuffRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x10},
		{0x02, 0x03},
		{0xff, 0x7e, 0x01, 0x03, 0x00, 0x10, 0x11},
		{0x20, 0x21, 0x22, 0x80, 0x90, 0xa0},
	}
	for _, c := range cases {
		stuffed := stuff(c)
		back, err := unstuff(stuffed)
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
}

func TestNeedsEscape(t *testing.T) {
	for b := 0; b <= 0x10; b++ {
		assert.Truef(t, needsEscape(byte(b)), "byte 0x%02x should need escaping", b)
	}
	for b := 0x11; b <= 0xff; b++ {
		assert.Falsef(t, needsEscape(byte(b)), "byte 0x%02x should not need escaping", b)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		opcode  uint16
		payload []byte
	}{
		{"empty payload", 0x0010, nil},
		{"short payload", 0x0100, []byte{0x01}},
		{"payload needing escape", 0x8702, []byte{0x00, 0x01, 0x02, 0x03, 0x10, 0xd1}},
		{"long payload", 0x0024, make([]byte, 64)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := Encode(tc.opcode, tc.payload)
			assert.Equal(t, byte(StartByte), wire[0])
			assert.Equal(t, byte(EndByte), wire[len(wire)-1])

			// Append a synthetic RSSI byte to make this a well-formed
			// inbound frame, since Encode produces outbound (no-RSSI)
			// frames and Decode always expects one.
			inbound := toInboundFrame(tc.opcode, tc.payload, 0x42)
			got, err := Decode(inbound)
			require.NoError(t, err)
			assert.Equal(t, tc.opcode, got.Opcode)
			assert.Equal(t, byte(0x42), got.RSSI)
			if len(tc.payload) == 0 {
				assert.Empty(t, got.Payload)
			} else {
				assert.Equal(t, tc.payload, got.Payload)
			}
		})
	}
}

func TestEncodeKnownVector(t *testing.T) {
	// opcode 0x0010 with an empty payload: inner bytes are
	// 00 10 00 00 10 (opcode, length, checksum), every one of which is
	// <= 0x10 and so escaped on the wire.
	want := []byte{
		StartByte,
		EscByte, 0x10, // 0x00
		EscByte, 0x00, // 0x10
		EscByte, 0x10, // 0x00
		EscByte, 0x10, // 0x00
		EscByte, 0x00, // 0x10 (checksum)
		EndByte,
	}
	assert.Equal(t, want, Encode(0x0010, nil))
}

func TestDecodeChecksumMismatch(t *testing.T) {
	inbound := toInboundFrame(0x0010, nil, 0x00)
	// Flip a bit inside the stuffed region without touching delimiters.
	inbound[2] ^= 0xff
	_, err := Decode(inbound)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrLengthMismatch))
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode([]byte{StartByte, EndByte})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameTooShort)
}

func TestDecodeBadDelimiters(t *testing.T) {
	_, err := Decode([]byte{0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadDelimiters)
}

func TestDecodeLengthMismatch(t *testing.T) {
	inbound := toInboundFrame(0x0010, []byte{0x01, 0x02}, 0x00)
	// Truncate the stuffed region right before the end byte so the declared
	// length (2) no longer matches what's actually present.
	truncated := append(append([]byte{}, inbound[:len(inbound)-3]...), EndByte)
	_, err := Decode(truncated)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

// toInboundFrame builds a well-formed inbound frame (payload + trailing
// RSSI byte, matching what the dongle actually sends) by hand, independent
// of Encode, so codec tests don't validate Decode against its own Encode.
func toInboundFrame(opcode uint16, payload []byte, rssi byte) []byte {
	length := uint16(len(payload))
	tail := append(append([]byte{}, payload...), rssi)
	inner := []byte{byte(opcode >> 8), byte(opcode), byte(length >> 8), byte(length)}
	inner = append(inner, checksum(opcode, length, tail))
	inner = append(inner, tail...)

	out := []byte{StartByte}
	out = append(out, stuff(inner)...)
	out = append(out, EndByte)
	return out
}
