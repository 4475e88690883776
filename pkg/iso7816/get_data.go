package iso7816

// GET DATA (INS 'CA') retrieves one data object. P1-P2 hold its tag:
// '5F52' for the historical bytes, '006E' for a one-byte tag such as '6E'.
//
// GET RESPONSE (INS 'C0') fetches the bytes announced by a '61 XX' status word.
// It must use the logical channel of the command it continues.

// GetData creates a GET DATA command for tag, asking for as much data as the card can return.
func GetData(cla Class, tag uint16) *CommandAPDU {
	return NewCommandAPDU(cla, MustInstruction(INS_GET_DATA), byte(tag>>8), byte(tag), nil, MaxExtendedLe)
}

// GetResponse creates the continuation command for a '61 XX' status.
// An SW2 of '00' announces 256 bytes or more.
func GetResponse(cla Class, sw2 byte) *CommandAPDU {
	cla.IsChained = false
	cla.Raw, _ = cla.Byte(false)

	ne := int(sw2)
	if ne == 0 {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, MustInstruction(INS_GET_RESPONSE), 0x00, 0x00, nil, ne)
}
