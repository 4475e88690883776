package iso7816

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gregLibert/openpgp-card/pkg/tlv"
)

func TestCommandAPDU_Encode(t *testing.T) {
	cls := MustClass(0x00)
	insGetData := MustInstruction(INS_GET_DATA)
	insVerify := MustInstruction(INS_VERIFY)
	insPSO := MustInstruction(INS_PERFORM_SECURITY_OPERATION)

	short := Capabilities{}
	extended := Capabilities{SupportsExtendedLength: true}
	chaining := Capabilities{SupportsChaining: true}

	tests := []struct {
		name     string
		cmd      *CommandAPDU
		caps     Capabilities
		expected [][]byte
	}{
		{
			name:     "Header only",
			cmd:      NewCommandAPDU(cls, insVerify, 0x00, 0x82, nil, 0),
			caps:     short,
			expected: [][]byte{tlv.Hex("00 20 00 82")},
		},
		{
			name:     "No data, short Le",
			cmd:      NewCommandAPDU(cls, insGetData, 0x5F, 0x52, nil, MaxExtendedLe),
			caps:     short,
			expected: [][]byte{tlv.Hex("00 CA 5F 52", "00")},
		},
		{
			name:     "No data, extended Le (3 zero bytes)",
			cmd:      NewCommandAPDU(cls, insGetData, 0x00, 0x6E, nil, MaxExtendedLe),
			caps:     extended,
			expected: [][]byte{tlv.Hex("00 CA 00 6E", "00 00 00")},
		},
		{
			name:     "Short data, no Le",
			cmd:      NewCommandAPDU(cls, insVerify, 0x00, 0x82, []byte("123456"), 0),
			caps:     short,
			expected: [][]byte{tlv.Hex("00 20 00 82", "06", "313233343536")},
		},
		{
			name:     "Short data with Le",
			cmd:      NewCommandAPDU(cls, insPSO, 0x80, 0x86, tlv.Hex("00 AA BB"), MaxExtendedLe),
			caps:     chaining,
			expected: [][]byte{tlv.Hex("00 2A 80 86", "03", "00 AA BB", "00")},
		},
		{
			name:     "Extended Lc and Le",
			cmd:      NewCommandAPDU(cls, insPSO, 0x80, 0x86, tlv.Hex("00 AA BB"), MaxExtendedLe),
			caps:     extended,
			expected: [][]byte{tlv.Hex("00 2A 80 86", "00 00 03", "00 AA BB", "00 00")},
		},
		{
			name:     "Explicit Le",
			cmd:      NewCommandAPDU(cls, insGetData, 0x00, 0xC4, nil, 7),
			caps:     short,
			expected: [][]byte{tlv.Hex("00 CA 00 C4", "07")},
		},
		{
			name: "Chained payload (300 bytes)",
			cmd:  NewCommandAPDU(cls, insPSO, 0x80, 0x86, bytes.Repeat([]byte{0xAB}, 300), MaxExtendedLe),
			caps: chaining,
			expected: [][]byte{
				append(tlv.Hex("10 2A 80 86", "FF"), bytes.Repeat([]byte{0xAB}, 255)...),
				append(append(tlv.Hex("00 2A 80 86", "2D"), bytes.Repeat([]byte{0xAB}, 45)...), 0x00),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.Encode(tt.caps)
			if err != nil {
				t.Fatalf("Encoding failed: %v", err)
			}
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Frames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCommandAPDU_Encode_DoesNotMutate(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 600)
	cmd := NewCommandAPDU(MustClass(0x00), MustInstruction(INS_PERFORM_SECURITY_OPERATION), 0x80, 0x86, data, MaxExtendedLe)
	before := *cmd

	if _, err := cmd.Encode(Capabilities{SupportsChaining: true}); err != nil {
		t.Fatalf("Encoding failed: %v", err)
	}

	if diff := cmp.Diff(before, *cmd); diff != "" {
		t.Errorf("Command changed by Encode (-before +after):\n%s", diff)
	}
}

// payloadOf strips header, Lc and Le from a frame built for a command with data.
func payloadOf(t *testing.T, frame []byte, extended bool) []byte {
	t.Helper()
	if extended {
		nc := int(frame[5])<<8 | int(frame[6])
		return frame[7 : 7+nc]
	}
	nc := int(frame[4])
	return frame[5 : 5+nc]
}

func TestCommandAPDU_Encode_Payloads(t *testing.T) {
	lengths := []int{0, 1, 254, 255, 256, 510, 511, 1000, 65535, 65536}
	capsList := []Capabilities{
		{},
		{SupportsChaining: true},
		{SupportsExtendedLength: true},
		{SupportsChaining: true, SupportsExtendedLength: true},
	}

	for _, caps := range capsList {
		for _, l := range lengths {
			t.Run(fmt.Sprintf("%s/%d", caps, l), func(t *testing.T) {
				data := make([]byte, l)
				for i := range data {
					data[i] = byte(i)
				}
				cmd := NewCommandAPDU(MustClass(0x00), MustInstruction(INS_PERFORM_SECURITY_OPERATION), 0x80, 0x86, data, MaxExtendedLe)

				frames, err := cmd.Encode(caps)

				tooBig := l > MaxExtendedLc || (l > MaxShortLc && !caps.SupportsChaining && !caps.SupportsExtendedLength)
				if tooBig {
					if !errors.Is(err, ErrUnsupportedPayloadSize) {
						t.Fatalf("Expected ErrUnsupportedPayloadSize, got %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("Encoding failed: %v", err)
				}

				wantFrames := 1
				if l > 0 && !caps.SupportsExtendedLength {
					wantFrames = (l + MaxShortLc - 1) / MaxShortLc
				}
				if len(frames) != wantFrames {
					t.Fatalf("Frame count = %d, want %d", len(frames), wantFrames)
				}

				if l == 0 {
					return
				}

				var rebuilt []byte
				for i, f := range frames {
					last := i == len(frames)-1
					if chained := f[0]&0x10 != 0; chained == last {
						t.Errorf("frame %d: chaining bit = %v, last = %v", i, chained, last)
					}
					rebuilt = append(rebuilt, payloadOf(t, f, caps.SupportsExtendedLength)...)
				}
				if !bytes.Equal(rebuilt, data) {
					t.Error("Concatenated payload differs from the original")
				}
			})
		}
	}
}

func TestParseResponseAPDU(t *testing.T) {
	// Raw: 01 02 03 (Data) | 90 00 (SW)
	raw, _ := hex.DecodeString("0102039000")
	resp, err := ParseResponseAPDU(raw)

	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(resp.Data) != 3 {
		t.Errorf("Wrong data length: got %d, want 3", len(resp.Data))
	}
	if resp.Status != SW_NO_ERROR {
		t.Errorf("Wrong status: got %04X, want %04X", uint16(resp.Status), uint16(SW_NO_ERROR))
	}
	if !strings.Contains(resp.String(), "3 bytes") {
		t.Errorf("String() = %q", resp.String())
	}
}

func TestParseResponseAPDU_TooShort(t *testing.T) {
	// Only 1 byte, should fail
	raw := []byte{0x90}
	_, err := ParseResponseAPDU(raw)

	if err == nil {
		t.Error("Expected error for short response, got nil")
	}
}
