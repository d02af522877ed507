package model

// ScanPayloadType tags a structured payload as a gift card payload.
const ScanPayloadType = "giftcard"

// ScanPayloadVersion is the only payload version this service understands.
const ScanPayloadVersion = 1

// ScanPayload is the object encoded into the QR code printed on a card.
type ScanPayload struct {
	Type    string `json:"type"`
	Version int    `json:"version"`
	Code    string `json:"code"`
}

// NewScanPayload builds the payload for a lookup code.
func NewScanPayload(code string) ScanPayload {
	return ScanPayload{Type: ScanPayloadType, Version: ScanPayloadVersion, Code: code}
}

// IdentifierKind tags which namespace an Identifier value belongs to.
type IdentifierKind int

const (
	IdentifierCardNumber IdentifierKind = iota + 1
	IdentifierLookupCode
)

func (k IdentifierKind) String() string {
	switch k {
	case IdentifierCardNumber:
		return "card_number"
	case IdentifierLookupCode:
		return "lookup_code"
	}
	return "unknown"
}

// Identifier is a resolved, normalized card identifier.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}
