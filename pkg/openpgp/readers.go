package openpgp

import "strings"

var readerShortNames = []struct {
	match string
	name  string
}{
	// NEO-N before NEO: the longer name contains the shorter one.
	{"yubikey neo-n", "YubiKey NEO-N"},
	{"yubikey neo", "YubiKey NEO"},
	{"yubikey 4", "YubiKey 4"},
	{"yubikey 5", "YubiKey 5"},
}

// ShortReaderName returns a display name for well-known readers, or reader itself.
func ShortReaderName(reader string) string {
	lower := strings.ToLower(reader)
	for _, r := range readerShortNames {
		if strings.Contains(lower, r.match) {
			return r.name
		}
	}
	return reader
}
