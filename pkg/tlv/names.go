package tlv

import "fmt"

// OpenPGP card data objects (OpenPGP Card specification 3.4, section 4.4).
const (
	TagLoginData              uint32 = 0x5E
	TagPublicKeyURL           uint32 = 0x5F50
	TagCardholderRelatedData  uint32 = 0x65
	TagCardholderName         uint32 = 0x5B
	TagLanguagePreference     uint32 = 0x5F2D
	TagSex                    uint32 = 0x5F35
	TagApplicationRelatedData uint32 = 0x6E
	TagApplicationIdentifier  uint32 = 0x4F
	TagHistoricalBytes        uint32 = 0x5F52
	TagExtendedLengthInfo     uint32 = 0x7F66
	TagDiscretionaryData      uint32 = 0x73
	TagExtendedCapabilities   uint32 = 0xC0
	TagAlgorithmSignature     uint32 = 0xC1
	TagAlgorithmDecryption    uint32 = 0xC2
	TagAlgorithmAuth          uint32 = 0xC3
	TagPWStatusBytes          uint32 = 0xC4
	TagFingerprints           uint32 = 0xC5
	TagCAFingerprints         uint32 = 0xC6
	TagGenerationTimestamps   uint32 = 0xCD
	TagSecuritySupport        uint32 = 0x7A
	TagSignatureCounter       uint32 = 0x93
)

var tagNames = map[uint32]string{
	TagLoginData:              "Login data",
	TagPublicKeyURL:           "URL to public keys",
	TagCardholderRelatedData:  "Cardholder Related Data",
	TagCardholderName:         "Name",
	TagLanguagePreference:     "Language preference",
	TagSex:                    "Sex",
	TagApplicationRelatedData: "Application Related Data",
	TagApplicationIdentifier:  "Application Identifier",
	TagHistoricalBytes:        "Historical bytes",
	TagExtendedLengthInfo:     "Extended length information",
	TagDiscretionaryData:      "Discretionary data objects",
	TagExtendedCapabilities:   "Extended capabilities",
	TagAlgorithmSignature:     "Algorithm attributes: signature",
	TagAlgorithmDecryption:    "Algorithm attributes: decryption",
	TagAlgorithmAuth:          "Algorithm attributes: authentication",
	TagPWStatusBytes:          "PW Status Bytes",
	TagFingerprints:           "Fingerprints",
	TagCAFingerprints:         "CA Fingerprints",
	TagGenerationTimestamps:   "Generation Timestamps",
	TagSecuritySupport:        "Security support template",
	TagSignatureCounter:       "Digital signature counter",
}

// TagName returns the diagnostic name of an OpenPGP card tag.
func TagName(tag uint32) string {
	if name, ok := tagNames[tag]; ok {
		return name
	}
	return fmt.Sprintf("unknown tag %X", tag)
}
