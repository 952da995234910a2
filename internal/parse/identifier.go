package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	numericRe = regexp.MustCompile(`^\d{1,19}$`)
	// VINs are 17 characters and never contain I, O or Q.
	vinRe = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
)

// IdentifierKind says which column an identifier refers to.
type IdentifierKind int

const (
	KindUnknown IdentifierKind = iota
	// KindLocalID is a locally assigned UUID.
	KindLocalID
	// KindTeslaID is a numeric Fleet API id or vehicle_id.
	KindTeslaID
	KindVIN
)

func (k IdentifierKind) String() string {
	switch k {
	case KindLocalID:
		return "local_id"
	case KindTeslaID:
		return "tesla_id"
	case KindVIN:
		return "vin"
	default:
		return "unknown"
	}
}

// Identifier is a vehicle reference supplied by a caller.
type Identifier struct {
	Kind  IdentifierKind
	Value string
}

// ParseIdentifier classifies a raw vehicle reference. VINs are upper-cased.
func ParseIdentifier(raw string) (Identifier, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Identifier{}, fmt.Errorf("empty vehicle identifier")
	}

	if numericRe.MatchString(s) {
		return Identifier{Kind: KindTeslaID, Value: s}, nil
	}
	if u, err := uuid.Parse(s); err == nil {
		return Identifier{Kind: KindLocalID, Value: u.String()}, nil
	}
	if up := strings.ToUpper(s); vinRe.MatchString(up) {
		return Identifier{Kind: KindVIN, Value: up}, nil
	}
	return Identifier{}, fmt.Errorf("unable to parse vehicle identifier: %q", raw)
}
