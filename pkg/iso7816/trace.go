package iso7816

import (
	"fmt"
	"strings"
)

// TRANSACTION:
// A Transaction represents the atomic unit of communication defined in ISO 7816-3:
// one physical frame sent by the terminal, followed by one Response APDU (R-APDU)
// sent back by the card.
//
// TRACE:
// A Trace is a chronological sequence of Transactions. It captures the full history of a
// logical operation. A single logical command may need several physical exchanges:
// 1. Command chaining: the payload is split across frames with the CLA chaining bit set.
// 2. "61 XX" (Process Completed): The card has XX extra bytes. The terminal must send a GET RESPONSE.
// 3. "6C XX" (Wrong Length): The terminal must re-send the command with Le = XX.
//
// In these cases, the Trace contains the entire conversation, and IsSuccess() evaluates
// the final outcome.

// FrameKind tells why a frame was sent.
type FrameKind int

const (
	// FrameChained is a non-final chunk of a chained command. Its response only matters on error.
	FrameChained FrameKind = iota
	// FrameFinal is the last (or only) frame of the logical command.
	FrameFinal
	// FrameResend is the final frame sent again with the Le suggested by '6C XX'.
	FrameResend
	// FrameGetResponse fetches the continuation announced by '61 XX'.
	FrameGetResponse
)

func (k FrameKind) String() string {
	switch k {
	case FrameChained:
		return "CHAINED"
	case FrameFinal:
		return "FINAL"
	case FrameResend:
		return "RESEND"
	case FrameGetResponse:
		return "GET RESPONSE"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Transaction represents a completed Command-Response pair.
type Transaction struct {
	Kind     FrameKind
	Command  *CommandAPDU
	Frame    []byte
	Response *ResponseAPDU
}

// IsSuccess checks if the transaction ended with a successful status.
// It returns false if the response is missing.
func (t *Transaction) IsSuccess() bool {
	if t.Response == nil {
		return false
	}
	return t.Response.Status.IsSuccess()
}

// Trace is a sequence of transactions (Command-Response pairs).
// It represents the full history of a logical exchange (including chaining and 61xx/6Cxx handling).
type Trace []Transaction

// Last returns the final transaction of the trace.
// Returns nil if the trace is empty.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess checks if the FINAL transaction in the trace was successful.
// This determines if the overall logical operation succeeded, regardless of
// intermediate warnings (like 61XX) in previous transactions.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	if last == nil {
		return false
	}
	return last.IsSuccess()
}

// Data concatenates the response data of the final frame and of every GET RESPONSE
// that followed it. Responses to chained frames are ignored.
func (t Trace) Data() []byte {
	var data []byte
	for _, tx := range t {
		if tx.Response == nil {
			continue
		}
		switch tx.Kind {
		case FrameFinal, FrameResend:
			data = append(data[:0], tx.Response.Data...)
		case FrameGetResponse:
			data = append(data, tx.Response.Data...)
		}
	}
	return data
}

// Result returns the response data when the exchange ended with '90 00',
// and a *StatusError carrying the final status word otherwise.
func (t Trace) Result() ([]byte, error) {
	last := t.Last()
	if last == nil || last.Response == nil {
		return nil, fmt.Errorf("empty trace")
	}
	if last.Response.Status != SW_NO_ERROR {
		return nil, &StatusError{Status: last.Response.Status}
	}
	return t.Data(), nil
}

// Describe generates a step-by-step report of the exchange.
// Command data is masked for VERIFY so PINs never reach logs.
func (t Trace) Describe() string {
	var sb strings.Builder

	if len(t) == 0 {
		return "=== EMPTY TRACE ===\n"
	}

	cmd := t[0].Command
	sb.WriteString(fmt.Sprintf("=== %s REPORT ===\n", strings.TrimPrefix(cmd.Instruction.Raw.String(), "INS_")))
	sb.WriteString(fmt.Sprintf("    + Command: %s\n", cmd))

	for i, tx := range t {
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, tx.Kind))

		if tx.Command != nil && tx.Command.Instruction.Raw == INS_VERIFY {
			sb.WriteString(fmt.Sprintf("    + Sent:    %X (%d bytes, data masked)\n", tx.Frame[:min(4, len(tx.Frame))], len(tx.Frame)))
		} else {
			sb.WriteString(fmt.Sprintf("    + Sent:    %X\n", tx.Frame))
		}

		if tx.Response == nil {
			sb.WriteString("    + Result:  no response\n")
			continue
		}

		sw := tx.Response.Status
		resultMsg := "[OK]"
		if !sw.IsSuccess() {
			resultMsg = "[!!]"
		}
		sb.WriteString(fmt.Sprintf("    + Result:  [%02X %02X] %s %s\n", sw.SW1(), sw.SW2(), resultMsg, sw.Verbose()))

		if len(tx.Response.Data) > 0 {
			sb.WriteString(fmt.Sprintf("    + Payload: %d bytes received\n", len(tx.Response.Data)))
		}
	}

	sb.WriteString("[=] FINAL OUTCOME:\n")
	if data, err := t.Result(); err != nil {
		sb.WriteString(fmt.Sprintf("    - Failed: %v\n", err))
	} else {
		sb.WriteString(fmt.Sprintf("    - %d bytes of response data\n", len(data)))
	}

	return sb.String()
}
