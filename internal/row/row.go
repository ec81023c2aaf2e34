// Package row holds the shared domain types and logging streams for the
// crop-row perception pipeline. Layer packages (points, neighbors,
// shellnet, extract) do not import each other's internals; they share
// only what lives here.
package row

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

// Frame is one LIDAR scan as delivered by the ingest shim: a variable
// number of sensor-frame points plus identity and arrival time.
//
// Coordinate convention: metres, +X is the vehicle forward axis,
// +Y lateral left, +Z up. The sensor origin is the vehicle origin.
type Frame struct {
	ID     string
	Stamp  time.Time
	Points []r3.Vector
}

// NewFrame wraps a raw point slice in a Frame with a fresh ID.
func NewFrame(pts []r3.Vector, stamp time.Time) Frame {
	return Frame{
		ID:     uuid.NewString(),
		Stamp:  stamp,
		Points: pts,
	}
}
