package assembler

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasu-drooz/zigate-transport/codec"
)

func collect() (*Assembler, *[]codec.Frame, *[]error) {
	var frames []codec.Frame
	var errs []error
	a := New(
		func(f codec.Frame) { frames = append(frames, f) },
		func(err error) { errs = append(errs, err) },
		zerolog.Nop(),
	)
	return a, &frames, &errs
}

func inboundFrame(t *testing.T, opcode uint16, payload []byte) []byte {
	t.Helper()
	// Build a well-formed inbound frame by reusing Encode and splicing in a
	// trailing RSSI byte before the end marker, since Encode only produces
	// outbound (no-RSSI) frames. RSSI must be 0x00 here: the inbound checksum
	// covers payload plus RSSI, and xoring in zero keeps Encode's
	// payload-only checksum valid.
	outbound := codec.Encode(opcode, payload)
	withRSSI := make([]byte, 0, len(outbound)+2)
	withRSSI = append(withRSSI, outbound[:len(outbound)-1]...)
	withRSSI = append(withRSSI, 0x02, 0x10) // stuffed RSSI=0x00
	withRSSI = append(withRSSI, codec.EndByte)
	frame, err := codec.Decode(withRSSI)
	require.NoError(t, err)
	require.Equal(t, opcode, frame.Opcode)
	return withRSSI
}

func TestFeedSingleFrame(t *testing.T) {
	a, frames, errs := collect()
	a.Feed(inboundFrame(t, 0x8000, []byte{0x00, 0x01}))
	assert.Len(t, *frames, 1)
	assert.Empty(t, *errs)
	assert.Equal(t, uint16(0x8000), (*frames)[0].Opcode)
}

func TestFeedSplitAcrossChunks(t *testing.T) {
	a, frames, errs := collect()
	full := inboundFrame(t, 0x0100, []byte{0x01, 0x02})
	require.True(t, len(full) >= 4)
	a.Feed(full[:1])
	a.Feed(full[1:3])
	a.Feed(full[3:])
	assert.Len(t, *frames, 1)
	assert.Empty(t, *errs)
}

func TestFeedTwoFramesInOneChunk(t *testing.T) {
	a, frames, errs := collect()
	f1 := inboundFrame(t, 0x8000, nil)
	f2 := inboundFrame(t, 0x8011, []byte{0x00})
	combined := append(append([]byte{}, f1...), f2...)
	a.Feed(combined)
	require.Len(t, *frames, 2)
	assert.Empty(t, *errs)
	assert.Equal(t, uint16(0x8000), (*frames)[0].Opcode)
	assert.Equal(t, uint16(0x8011), (*frames)[1].Opcode)
}

func TestFeedNoiseBeforeStartDiscarded(t *testing.T) {
	a, frames, errs := collect()
	noise := []byte{0xde, 0xad, 0xbe, 0xef}
	good := inboundFrame(t, 0x8000, nil)
	a.Feed(append(append([]byte{}, noise...), good...))
	assert.Len(t, *frames, 1)
	assert.Empty(t, *errs)
}

func TestFeedCorruptFrameReportsErrorAndContinues(t *testing.T) {
	a, frames, errs := collect()
	bad := inboundFrame(t, 0x8000, nil)
	bad[2] ^= 0xff // corrupt checksum region
	good := inboundFrame(t, 0x8011, []byte{0x00})
	a.Feed(append(append([]byte{}, bad...), good...))
	assert.Len(t, *errs, 1)
	require.Len(t, *frames, 1)
	assert.Equal(t, uint16(0x8011), (*frames)[0].Opcode)
}

func TestFeedIncompleteFrameWaits(t *testing.T) {
	a, frames, errs := collect()
	full := inboundFrame(t, 0x0010, nil)
	a.Feed(full[:len(full)-1])
	assert.Empty(t, *frames)
	assert.Empty(t, *errs)
	a.Feed(full[len(full)-1:])
	assert.Len(t, *frames, 1)
}
