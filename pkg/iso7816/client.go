package iso7816

import (
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a high-level driver over the physical connection.
// It encodes each logical command according to the card capabilities and
// handles the ISO 7816-3 transport behaviors exposed to the application layer:
//
// 1. Command chaining:
//    Frames are sent strictly in order. A response to a non-final frame is only
//    looked at for errors; an error stops the sequence.
//
// 2. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client sends GET RESPONSE
//    until the card answers with a final status, concatenating the data.
//
// 3. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and suggests XX.
//    The client re-sends the final frame once with Le = XX.
//
// The Send() method returns a Trace, which is a log of all atomic transactions
// occurred to fulfill the logical request.

// maxGetResponse bounds the continuation loop: 65536 bytes in 256-byte steps, plus slack.
const maxGetResponse = 512

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the high-level communication with the card.
type Client struct {
	Card         Transmitter
	Capabilities Capabilities
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter, caps Capabilities) *Client {
	return &Client{Card: card, Capabilities: caps}
}

// Send transmits a command and handles protocol logic (chaining, 61xx, 6Cxx).
// Card status words are left in the trace; only encoding and transport failures are errors.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	frames, err := cmd.Encode(c.Capabilities)
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	var trace Trace

	for i, frame := range frames {
		kind := FrameChained
		if i == len(frames)-1 {
			kind = FrameFinal
		}

		tx, err := c.exchange(kind, cmd, frame)
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)

		if kind == FrameChained && !tx.IsSuccess() {
			return trace, nil
		}
	}

	// Case 6CXX: Wrong Length -> Re-issue the final frame with the correct Le
	if last := trace.Last(); last.Kind == FrameFinal && last.Response.Status.SW1() == 0x6C {
		sw := last.Response.Status
		resend := *cmd
		resend.Ne = int(sw.SW2())
		if resend.Ne == 0 {
			resend.Ne = MaxShortLe
		}

		frames, err := resend.Encode(c.Capabilities)
		if err != nil {
			return trace, fmt.Errorf("encoding error: %w", err)
		}

		tx, err := c.exchange(FrameResend, &resend, frames[len(frames)-1])
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)
	}

	// Case 61XX: More data available -> Issue GET RESPONSE
	for n := 0; trace.Last().Response.Status.SW1() == 0x61; n++ {
		if n == maxGetResponse {
			return trace, fmt.Errorf("card kept announcing data after %d GET RESPONSE commands", n)
		}

		getResp := GetResponse(cmd.Class, trace.Last().Response.Status.SW2())
		frames, err := getResp.Encode(c.Capabilities)
		if err != nil {
			return trace, fmt.Errorf("encoding error: %w", err)
		}

		tx, err := c.exchange(FrameGetResponse, getResp, frames[0])
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)
	}

	return trace, nil
}

// Transmit sends cmd and returns the complete response data.
// Any final status other than '90 00' is returned as a *StatusError.
func (c *Client) Transmit(cmd *CommandAPDU) ([]byte, error) {
	trace, err := c.Send(cmd)
	if err != nil {
		return nil, err
	}
	return trace.Result()
}

func (c *Client) exchange(kind FrameKind, cmd *CommandAPDU, frame []byte) (Transaction, error) {
	rawResp, err := c.Card.Transmit(frame)
	if err != nil {
		return Transaction{}, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return Transaction{}, err
	}

	return Transaction{Kind: kind, Command: cmd, Frame: frame, Response: resp}, nil
}
