package tcpnet

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestEncodeHeader(t *testing.T) {
	tests := []struct {
		name   string
		format PacketFormat
		length int
		want   []byte
	}{
		{"zero length", FormatRaw, 0, []byte{0, '0', '0', '0', '0', '0'}},
		{"padded length", FormatRaw, 42, []byte{0, '0', '0', '0', '4', '2'}},
		{"ping", FormatHeartbeatPing, 0, []byte{1, '0', '0', '0', '0', '0'}},
		{"pong", FormatHeartbeatPong, 0, []byte{2, '0', '0', '0', '0', '0'}},
		{"max length", FormatRaw, MaxPayloadSize, []byte{0, '9', '9', '9', '9', '9'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeHeader(tt.format, tt.length)
			if err != nil {
				t.Fatalf("EncodeHeader failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("EncodeHeader = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeHeader_LengthOutOfRange(t *testing.T) {
	if _, err := EncodeHeader(FormatRaw, MaxPayloadSize+1); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("length %d: expected ErrPayloadTooLarge, got %v", MaxPayloadSize+1, err)
	}

	if _, err := EncodeHeader(FormatRaw, -1); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("negative length: expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestEncodePacket_TooLarge(t *testing.T) {
	payload := make([]byte, MaxPayloadSize+1)

	if _, err := EncodePacket(FormatRaw, payload); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestPacket_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		[]byte("x"),
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 1234),
		bytes.Repeat([]byte{0xCD}, MaxPayloadSize),
	}

	for _, payload := range payloads {
		frame, err := EncodePacket(FormatRaw, payload)
		if err != nil {
			t.Fatalf("EncodePacket(%d bytes) failed: %v", len(payload), err)
		}

		if len(frame) != HeaderSize+len(payload) {
			t.Fatalf("frame size = %d, want %d", len(frame), HeaderSize+len(payload))
		}

		format, got, err := DecodePacket(frame)
		if err != nil {
			t.Fatalf("DecodePacket(%d bytes) failed: %v", len(payload), err)
		}
		if format != FormatRaw {
			t.Errorf("format = %v, want %v", format, FormatRaw)
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload mismatch for %d bytes", len(payload))
		}
	}
}

func TestDecodeHeader(t *testing.T) {
	header, err := DecodeHeader([]byte{1, '0', '0', '1', '2', '3'})
	if err != nil {
		t.Fatalf("DecodeHeader failed: %v", err)
	}

	if header.Format != FormatHeartbeatPing {
		t.Errorf("format = %v, want %v", header.Format, FormatHeartbeatPing)
	}
	if header.Length != 123 {
		t.Errorf("length = %d, want 123", header.Length)
	}
}

func TestDecodeHeader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"unknown format", []byte{9, '0', '0', '0', '0', '0'}, ErrUnknownFormat},
		{"non-digit length", []byte{0, '0', '0', 'x', '0', '0'}, ErrMalformedHeader},
		{"too short", []byte{0, '0', '0'}, ErrMalformedHeader},
		{"too long", []byte{0, '0', '0', '0', '0', '0', '0'}, ErrMalformedHeader},
		{"empty", nil, ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeHeader(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestDecodePacket_LengthMismatch(t *testing.T) {
	frame, err := EncodePacket(FormatRaw, []byte("hello"))
	if err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}

	if _, _, err := DecodePacket(frame[:len(frame)-1]); !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("truncated frame: expected ErrMalformedHeader, got %v", err)
	}
}

func TestPacketFormat_String(t *testing.T) {
	tests := []struct {
		format PacketFormat
		want   string
	}{
		{FormatRaw, "RAW"},
		{FormatHeartbeatPing, "HEARTBEAT_PING"},
		{FormatHeartbeatPong, "HEARTBEAT_PONG"},
		{PacketFormat(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("PacketFormat(%d).String() = %q, want %q", tt.format, got, tt.want)
		}
	}
}
