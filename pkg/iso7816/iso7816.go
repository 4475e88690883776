/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication: Command and Response structures, the capability-aware frame encoder, Status Word (SW) analysis and a Client driving the transport-level protocol.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Card Capabilities

Not every card accepts every framing. The historical bytes announce whether the card
supports command chaining and extended Lc/Le fields; NegotiateCapabilities reads them and
CommandAPDU.Encode produces the frames the card can accept.

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions, returned as *StatusError by Client.Transmit.

# Usage Example: Reading a data object

	caps, err := iso7816.NegotiateCapabilities(historical)
	if err != nil {
	    log.Printf("no capabilities record, using short APDUs: %v", err)
	}

	client := iso7816.NewClient(card, caps)
	data, err := client.Transmit(iso7816.GetData(iso7816.MustClass(0x00), 0x006E))
	if err != nil {
	    var se *iso7816.StatusError
	    if errors.As(err, &se) {
	        log.Printf("card refused: %s", se.Status.Verbose())
	    }
	    return err
	}

	// The Trace returned by Send keeps every physical exchange for debugging.
	trace, _ := client.Send(cmd)
	fmt.Println(trace.Describe())
*/
package iso7816
