package iso7816

import "fmt"

// SELECT (INS 'A4', ISO/IEC 7816-4 section 11.2.2) makes a file or application current.
// P1 names the target kind, P2 bits 4-3 pick the answer (FCI, FCP, FMD or nothing) and
// bits 2-1 the occurrence. Applications such as OpenPGP are selected by DF name, their
// AID, with P2 '00'. OpenPGP cards answer with a status word only.

// SelectionMethod is the P1 of SELECT.
type SelectionMethod byte

const (
	SelectByFileID   SelectionMethod = 0x00
	SelectByDFName   SelectionMethod = 0x04
	SelectPathFromMF SelectionMethod = 0x08
)

var selectionMethodNames = map[SelectionMethod]string{
	SelectByFileID:   "by file ID",
	SelectByDFName:   "by DF name",
	SelectPathFromMF: "by path from MF",
}

func (s SelectionMethod) String() string {
	if name, ok := selectionMethodNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SelectionMethod(%02X)", byte(s))
}

// SelectionControl is the answer requested in P2.
type SelectionControl byte

const (
	ReturnFCI    SelectionControl = 0x00
	ReturnFCP    SelectionControl = 0x04
	ReturnFMD    SelectionControl = 0x08
	ReturnNoData SelectionControl = 0x0C
)

// NewSelectCommand builds SELECT for the first or only occurrence of the target.
// A command carrying data goes without Le so T=0 readers accept it; the card then
// announces its answer with '61 XX'.
func NewSelectCommand(cla Class, method SelectionMethod, ctrl SelectionControl, data []byte) *CommandAPDU {
	ne := 0
	if len(data) == 0 && ctrl != ReturnNoData {
		ne = MaxShortLe
	}
	return NewCommandAPDU(cla, MustInstruction(INS_SELECT), byte(method), byte(ctrl), data, ne)
}

// SelectByAID selects the application named aid.
func SelectByAID(cla Class, aid []byte) *CommandAPDU {
	return NewSelectCommand(cla, SelectByDFName, ReturnFCI, aid)
}
