package tcpnet

import (
	"time"

	"github.com/pkg/errors"
)

// PacketFormat identifies the kind of payload a frame carries.
// It is encoded on the wire as a single byte and must never change value:
// both ends of a connection depend on the same mapping.
type PacketFormat byte

const (
	// FormatRaw carries an opaque application payload.
	FormatRaw PacketFormat = 0
	// FormatHeartbeatPing is sent by clients to measure round-trip latency.
	FormatHeartbeatPing PacketFormat = 1
	// FormatHeartbeatPong is the server's answer to a ping.
	FormatHeartbeatPong PacketFormat = 2
)

// String returns a human-readable name for the format.
func (f PacketFormat) String() string {
	switch f {
	case FormatRaw:
		return "RAW"
	case FormatHeartbeatPing:
		return "HEARTBEAT_PING"
	case FormatHeartbeatPong:
		return "HEARTBEAT_PONG"
	default:
		return "UNKNOWN"
	}
}

const (
	// HeaderSize is the fixed wire size of a frame header:
	// 1 format byte + 5 ASCII decimal digits of payload length.
	HeaderSize = 6
	// MaxPayloadSize is the largest payload a single frame can carry,
	// bounded by the 5-digit length field.
	MaxPayloadSize = 99999
)

// Errors returned by the packet codec.
var (
	// ErrPayloadTooLarge is returned when a payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum frame size")
	// ErrUnknownFormat is returned when a header carries an unrecognized format byte.
	ErrUnknownFormat = errors.New("unknown packet format")
	// ErrMalformedHeader is returned when the length field is not decimal digits.
	ErrMalformedHeader = errors.New("malformed packet header")
)

// Header describes the frame that follows it on the wire.
type Header struct {
	Format PacketFormat
	Length int
}

// Packet is one decoded inbound frame. It is created by the receive loop
// the moment the full payload has arrived and is immutable afterwards.
type Packet struct {
	Payload    []byte
	Header     Header
	ReceivedAt time.Time
}

// EncodeHeader builds the 6-byte wire header for a frame of the given
// format and payload length.
func EncodeHeader(format PacketFormat, length int) ([]byte, error) {
	if length < 0 || length > MaxPayloadSize {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "length %d", length)
	}

	header := make([]byte, HeaderSize)
	header[0] = byte(format)
	for i := HeaderSize - 1; i >= 1; i-- {
		header[i] = '0' + byte(length%10)
		length /= 10
	}

	return header, nil
}

// EncodePacket frames a payload: header followed by the payload bytes.
func EncodePacket(format PacketFormat, payload []byte) ([]byte, error) {
	header, err := EncodeHeader(format, len(payload))
	if err != nil {
		return nil, err
	}

	return append(header, payload...), nil
}

// DecodeHeader parses a 6-byte wire header. The format byte must be a
// known PacketFormat and the length field must be decimal digits; there
// is no checksum, so anything else means the stream has desynced.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) != HeaderSize {
		return Header{}, errors.Wrapf(ErrMalformedHeader, "got %d bytes, want %d", len(data), HeaderSize)
	}

	format := PacketFormat(data[0])
	switch format {
	case FormatRaw, FormatHeartbeatPing, FormatHeartbeatPong:
	default:
		return Header{}, errors.Wrapf(ErrUnknownFormat, "code %d", data[0])
	}

	length := 0
	for _, c := range data[1:] {
		if c < '0' || c > '9' {
			return Header{}, errors.Wrapf(ErrMalformedHeader, "length field %q", data[1:])
		}
		length = length*10 + int(c-'0')
	}

	return Header{Format: format, Length: length}, nil
}

// DecodePacket parses a whole frame: header plus payload. The frame must
// be complete; partial frames are the receive loop's problem, not the
// codec's.
func DecodePacket(data []byte) (PacketFormat, []byte, error) {
	if len(data) < HeaderSize {
		return 0, nil, errors.Wrapf(ErrMalformedHeader, "frame too short: %d bytes", len(data))
	}

	header, err := DecodeHeader(data[:HeaderSize])
	if err != nil {
		return 0, nil, err
	}

	if len(data) != HeaderSize+header.Length {
		return 0, nil, errors.Wrapf(ErrMalformedHeader, "frame length %d does not match header length %d", len(data)-HeaderSize, header.Length)
	}

	return header.Format, data[HeaderSize:], nil
}
