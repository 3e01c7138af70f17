// Package vban implements the VBAN UDP ingest path (spec §4.3, component
// C3): header parsing, PCM decode, mono downmix, resampling to the
// classifier's target rate, and a discovered-source registry with
// staleness eviction.
package vban

import (
	"errors"
	"fmt"

	"github.com/hrko/go-vban/vban"
)

const (
	// HeaderSize is the fixed VBAN header length in bytes.
	HeaderSize = 28
	magic      = "VBAN"
	nameOffset = 8
	nameLength = 20
)

// ErrShortPacket is returned when a received datagram is smaller than
// HeaderSize, mirroring the Python receiver's "paquet trop petit" guard.
var ErrShortPacket = errors.New("vban: packet shorter than header")

// ErrBadMagic is returned when a packet's first four bytes are not "VBAN".
var ErrBadMagic = errors.New("vban: missing VBAN magic")

// Header is the decoded subset of a VBAN packet's fixed header that the
// detection pipeline cares about: sample rate, channel count, and stream
// name. Sub-protocol, codec, and frame-counter fields are intentionally
// not modeled since only PCM audio streams are consumed.
type Header struct {
	SampleRate int
	Channels   int
	StreamName string
}

// ParseHeader decodes a VBAN packet's header, validating the magic bytes
// and minimum length, and returns it alongside the PCM payload that
// follows the header. Sample rate and channel count are decoded exactly
// as the original detector does: a 5-bit sample-rate index and a 3-bit
// (channels-1) field packed into byte 4.
func ParseHeader(packet []byte) (Header, []byte, error) {
	if len(packet) < HeaderSize {
		return Header{}, nil, fmt.Errorf("%w: got %d bytes", ErrShortPacket, len(packet))
	}
	if string(packet[0:4]) != magic {
		return Header{}, nil, ErrBadMagic
	}

	srIndex := vban.SRIndex(packet[4] & 0x1F)
	rate, ok := vban.SRList[srIndex]
	if !ok {
		rate = 44100
	}
	channels := int((packet[4]&0xE0)>>5) + 1

	name := cleanStreamName(packet[nameOffset : nameOffset+nameLength])

	return Header{
		SampleRate: int(rate),
		Channels:   channels,
		StreamName: name,
	}, packet[HeaderSize:], nil
}

// cleanStreamName cuts the stream name at the first NUL or non-printable
// byte, mirroring clean_vban_name. Everything after the terminator is
// ignored, including any printable bytes a sender leaves past the NUL,
// which trimming only trailing NULs would let through.
func cleanStreamName(raw []byte) string {
	for i, b := range raw {
		if b == 0 || b < 32 || b > 126 {
			return string(raw[:i])
		}
	}
	return string(raw)
}
