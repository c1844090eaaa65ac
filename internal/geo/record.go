package geo

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// FieldRecord is the plain hand-off record for the external field storage service.
type FieldRecord struct {
	Name         string        `json:"name"`
	Boundary     []LonLatPoint `json:"boundary"`
	AreaHectares float64       `json:"area_hectares"`
}

// NewFieldRecord builds a record from a completed boundary. The name is trimmed and
// NFC-normalized so visually equal names compare equal downstream.
func NewFieldRecord(name string, ring Ring) FieldRecord {
	boundary := make([]LonLatPoint, len(ring))
	copy(boundary, ring)
	return FieldRecord{
		Name:         norm.NFC.String(strings.TrimSpace(name)),
		Boundary:     boundary,
		AreaHectares: AreaHectares(ring),
	}
}
