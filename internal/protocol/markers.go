package protocol

import (
	"fmt"
	"strings"

	"github.com/stocky-app/stocky-core/internal/scanner"
)

// Default marker prefixes.
const (
	DefaultLocationPrefix = "LOC:"
	DefaultModePrefix     = "MODE:"
)

// BarcodeKind classifies a barcode.
type BarcodeKind int

// Barcode kinds.
const (
	BarcodeInventory BarcodeKind = iota
	BarcodeLocation
	BarcodeMode
)

func (k BarcodeKind) String() string {
	switch k {
	case BarcodeInventory:
		return "inventory"
	case BarcodeLocation:
		return "location"
	case BarcodeMode:
		return "mode"
	default:
		return fmt.Sprintf("BarcodeKind(%d)", int(k))
	}
}

// Classification is the result of Markers.Classify.
type Classification struct {
	Kind       BarcodeKind
	LocationID string
	Mode       scanner.Mode
}

// Markers holds the prefixes that mark location-tagged and mode-tagged
// codes. Prefix matching is case-insensitive.
type Markers struct {
	LocationPrefix string
	ModePrefix     string
}

// DefaultMarkers returns the LOC: and MODE: markers.
func DefaultMarkers() Markers {
	return Markers{LocationPrefix: DefaultLocationPrefix, ModePrefix: DefaultModePrefix}
}

// Classify reports what kind of code was scanned. An empty location id or
// an unknown mode after a marker prefix is an error.
func (m Markers) Classify(code string) (Classification, error) {
	if rest, ok := cutPrefixFold(code, m.LocationPrefix); ok {
		id := strings.TrimSpace(rest)
		if id == "" {
			return Classification{}, &DecodeError{Raw: code, Err: ErrMissingArgument}
		}
		return Classification{Kind: BarcodeLocation, LocationID: id}, nil
	}

	if rest, ok := cutPrefixFold(code, m.ModePrefix); ok {
		mode, err := scanner.ParseMode(rest)
		if err != nil {
			return Classification{}, &DecodeError{Raw: code, Err: ErrInvalidMode}
		}
		return Classification{Kind: BarcodeMode, Mode: mode}, nil
	}

	return Classification{Kind: BarcodeInventory}, nil
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if prefix == "" || len(s) < len(prefix) {
		return "", false
	}
	if !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	return s[len(prefix):], true
}
