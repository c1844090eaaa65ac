package geo

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MinPoints is the minimum number of distinct vertices of a field boundary.
const MinPoints = 3

// ErrCaptureComplete is returned when a point is added after the boundary was completed.
var ErrCaptureComplete = eris.New("geo: boundary capture already complete")

// InsufficientPointsError is returned when a boundary is completed with fewer than MinPoints.
type InsufficientPointsError struct {
	Have int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("geo: boundary needs at least %d points, have %d", MinPoints, e.Have)
}

// Missing returns how many more points are required.
func (e *InsufficientPointsError) Missing() int {
	return MinPoints - e.Have
}

// CaptureState is the state of a boundary capture session.
type CaptureState int

const (
	// Drawing accepts new points.
	Drawing CaptureState = iota
	// Complete holds a closed ring; no more points are accepted until Reset.
	Complete
)

func (s CaptureState) String() string {
	switch s {
	case Drawing:
		return "drawing"
	case Complete:
		return "complete"
	default:
		return "unknown"
	}
}

// Capture accumulates clicked points into a field boundary.
// It is not safe for concurrent use; it belongs to a single map view.
type Capture struct {
	state  CaptureState
	points []LonLatPoint
	ring   Ring
	// notified is set once the minimum-reached callback has fired.
	notified bool

	// OnMinimumReached is called once, when the MinPoints-th point is added.
	OnMinimumReached func(points int)
}

// NewCapture returns an empty capture in the Drawing state.
func NewCapture() *Capture {
	return &Capture{}
}

// State returns the current state.
func (c *Capture) State() CaptureState {
	return c.state
}

// Len returns the number of captured points.
func (c *Capture) Len() int {
	return len(c.points)
}

// Points returns a copy of the captured points in click order.
func (c *Capture) Points() []LonLatPoint {
	out := make([]LonLatPoint, len(c.points))
	copy(out, c.points)
	return out
}

// AddPoint appends p to the boundary. No de-duplication or snapping is applied.
func (c *Capture) AddPoint(p LonLatPoint) error {
	if c.state != Drawing {
		return ErrCaptureComplete
	}
	if err := p.Validate(); err != nil {
		return err
	}
	c.points = append(c.points, p)

	if len(c.points) >= MinPoints && !c.notified {
		c.notified = true
		zap.L().Debug("geo: boundary minimum reached", zap.Int("points", len(c.points)))
		if c.OnMinimumReached != nil {
			c.OnMinimumReached(len(c.points))
		}
	}
	return nil
}

// Undo removes the most recently added point.
func (c *Capture) Undo() error {
	if c.state != Drawing {
		return ErrCaptureComplete
	}
	if len(c.points) > 0 {
		c.points = c.points[:len(c.points)-1]
	}
	return nil
}

// Reset discards all points and returns to Drawing.
func (c *Capture) Reset() {
	c.state = Drawing
	c.points = nil
	c.ring = nil
	c.notified = false
}

// Area returns the live area in hectares of the points captured so far.
func (c *Capture) Area() float64 {
	return AreaHectares(c.points)
}

// Complete closes the boundary. With fewer than MinPoints points it fails with
// *InsufficientPointsError and stays in Drawing. Completing twice returns the same ring.
func (c *Capture) Complete() (Ring, error) {
	if c.state == Complete {
		return c.ring, nil
	}
	if n := len(Ring(c.points).Open()); n < MinPoints {
		return nil, &InsufficientPointsError{Have: n}
	}
	c.ring = Ring(c.points).Close()
	c.state = Complete
	return c.ring, nil
}
