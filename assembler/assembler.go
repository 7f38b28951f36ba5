// Package assembler accumulates inbound bytes from a Link into complete
// ZiGate frames, handing each one to the Coordinator via a callback.
package assembler

import (
	"bytes"

	"github.com/rs/zerolog"

	"github.com/sasu-drooz/zigate-transport/codec"
)

// FrameFunc receives one fully decoded, checksum-validated frame.
type FrameFunc func(codec.Frame)

// ErrorFunc receives a frame-level decode error (short frame, length
// mismatch, checksum mismatch) so the caller can bump the matching counter;
// the Assembler itself just drops the frame and keeps scanning.
type ErrorFunc func(error)

// Assembler holds a growable receive buffer and repeatedly extracts
// complete frames from it as bytes arrive. It is not safe for concurrent
// use — Feed is meant to be called from the single goroutine driving the
// Coordinator (directly, or via the Link's read loop if the caller
// serializes delivery itself).
type Assembler struct {
	buf     []byte
	onFrame FrameFunc
	onError ErrorFunc
	log     zerolog.Logger
}

// New builds an Assembler. onFrame and onError must both be non-nil.
func New(onFrame FrameFunc, onError ErrorFunc, logger zerolog.Logger) *Assembler {
	return &Assembler{onFrame: onFrame, onError: onError, log: logger}
}

// Feed appends chunk to the internal buffer and extracts every complete
// frame now available. Bytes preceding the first StartByte are logged as
// possibly lost and discarded.
func (a *Assembler) Feed(chunk []byte) {
	a.buf = append(a.buf, chunk...)

	for {
		start := bytes.IndexByte(a.buf, codec.StartByte)
		if start == -1 {
			if len(a.buf) > 0 {
				a.log.Warn().Int("bytes", len(a.buf)).Msg("assembler: possibly lost bytes, no frame start found, discarding")
				a.buf = a.buf[:0]
			}
			return
		}
		if start > 0 {
			a.log.Warn().Int("bytes", start).Msg("assembler: possibly lost bytes before frame start, discarding")
			a.buf = a.buf[start:]
		}

		relEnd := bytes.IndexByte(a.buf[1:], codec.EndByte)
		if relEnd == -1 {
			// Incomplete frame — wait for more bytes.
			return
		}
		end := relEnd + 1 // absolute index of EndByte within a.buf

		frameBytes := a.buf[:end+1]
		a.buf = a.buf[end+1:]

		frame, err := codec.Decode(frameBytes)
		if err != nil {
			a.onError(err)
			continue
		}
		a.onFrame(frame)
	}
}
