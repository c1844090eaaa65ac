package zone

import (
	"math"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Class is a management zone, ordered by urgency.
type Class int

// Zone classes.
const (
	OK Class = iota
	Observe
	Treat
	Urgent
)

// Classes lists every class in ascending order.
var Classes = []Class{OK, Observe, Treat, Urgent}

func (c Class) String() string {
	switch c {
	case OK:
		return "ok"
	case Observe:
		return "observe"
	case Treat:
		return "treat"
	case Urgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// MarshalText encodes the class name.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseClass parses a class name.
func ParseClass(s string) (Class, error) {
	for _, c := range Classes {
		if c.String() == s {
			return c, nil
		}
	}
	return OK, eris.Errorf("zone: unknown class %q", s)
}

// Thresholds are the inclusive lower bounds of Observe, Treat and Urgent on t ∈ [0, 1].
type Thresholds struct {
	Observe float64 `yaml:"observe" mapstructure:"observe" json:"observe"`
	Treat   float64 `yaml:"treat" mapstructure:"treat" json:"treat"`
	Urgent  float64 `yaml:"urgent" mapstructure:"urgent" json:"urgent"`
}

// DefaultThresholds is the fixed classification table.
var DefaultThresholds = Thresholds{Observe: 0.60, Treat: 0.78, Urgent: 0.90}

// Validate checks 0 < Observe < Treat < Urgent < 1.
func (th Thresholds) Validate() error {
	if !(0 < th.Observe && th.Observe < th.Treat && th.Treat < th.Urgent && th.Urgent < 1) {
		return eris.Errorf("zone: thresholds must satisfy 0 < observe < treat < urgent < 1, got %.3f/%.3f/%.3f",
			th.Observe, th.Treat, th.Urgent)
	}
	return nil
}

// Classify returns the class of t. Input is clamped to [0, 1]; NaN classifies as OK.
func (th Thresholds) Classify(t float64) Class {
	if math.IsNaN(t) {
		return OK
	}
	t = clamp01(t)
	switch {
	case t >= th.Urgent:
		return Urgent
	case t >= th.Treat:
		return Treat
	case t >= th.Observe:
		return Observe
	}
	return OK
}

// Classify uses DefaultThresholds.
func Classify(t float64) Class {
	return DefaultThresholds.Classify(t)
}

// ClassifyAll classifies each normalized value.
func (th Thresholds) ClassifyAll(ts []float64) []Class {
	out := make([]Class, len(ts))
	for i, t := range ts {
		out[i] = th.Classify(t)
	}
	return out
}

// thresholdFile is the YAML layout of a thresholds file.
type thresholdFile struct {
	Zones Thresholds `yaml:"zones"`
}

// LoadThresholds reads a YAML file of the form:
//
//	zones:
//	  observe: 0.6
//	  treat: 0.78
//	  urgent: 0.9
func LoadThresholds(path string) (Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Thresholds{}, eris.Wrapf(err, "zone: read thresholds %s", path)
	}
	return ParseThresholds(data)
}

// ParseThresholds decodes and validates a YAML thresholds document.
func ParseThresholds(data []byte) (Thresholds, error) {
	var f thresholdFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Thresholds{}, eris.Wrap(err, "zone: parse thresholds")
	}
	if err := f.Zones.Validate(); err != nil {
		return Thresholds{}, err
	}
	return f.Zones, nil
}
