// Package transform derives the geometry correction applied to camera frames.
//
// Everything here is pure: given the sensor orientation, the current display
// rotation and the camera facing, it returns the clockwise rotation and the
// mirror axis that make a frame upright and preview-like for the display.
package transform

import (
	"fmt"
	"strings"
)

// Rotation is a clockwise rotation in degrees. Valid values are 0, 90, 180 and 270.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four right angles.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// SwapsAxes reports whether rotating by r exchanges width and height.
func (r Rotation) SwapsAxes() bool {
	return r == Rotate90 || r == Rotate270
}

// Inverse returns the rotation that undoes r.
func (r Rotation) Inverse() Rotation {
	return Normalize(360 - int(r))
}

// Normalize maps any integer number of degrees onto the nearest right angle
// in [0, 360).
func Normalize(degrees int) Rotation {
	d := ((degrees % 360) + 360) % 360
	// Snap to the nearest multiple of 90 (45 rounds up).
	return Rotation(((d + 45) / 90 % 4) * 90)
}

// Facing is the camera mount direction relative to the display.
type Facing int

const (
	FacingFront Facing = iota
	FacingBack
	FacingExternal
)

// String returns the lowercase facing name.
func (f Facing) String() string {
	switch f {
	case FacingFront:
		return "front"
	case FacingBack:
		return "back"
	case FacingExternal:
		return "external"
	default:
		return fmt.Sprintf("facing(%d)", int(f))
	}
}

// ParseFacing parses "front", "back" or "external", ignoring case.
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "front":
		return FacingFront, nil
	case "back":
		return FacingBack, nil
	case "external":
		return FacingExternal, nil
	}
	return 0, fmt.Errorf("transform: unknown facing %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Facing) UnmarshalText(b []byte) error {
	v, err := ParseFacing(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Axis is a reflection axis.
type Axis int

const (
	AxisNone Axis = iota
	// AxisHorizontal mirrors left and right.
	AxisHorizontal
	// AxisVertical mirrors top and bottom.
	AxisVertical
	// AxisBoth mirrors on both axes (equivalent to a 180° rotation).
	AxisBoth
)

// String returns the lowercase axis name.
func (a Axis) String() string {
	switch a {
	case AxisNone:
		return "none"
	case AxisHorizontal:
		return "horizontal"
	case AxisVertical:
		return "vertical"
	case AxisBoth:
		return "both"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Axis) UnmarshalText(b []byte) error {
	for _, v := range []Axis{AxisNone, AxisHorizontal, AxisVertical, AxisBoth} {
		if strings.EqualFold(string(b), v.String()) {
			*a = v
			return nil
		}
	}
	return fmt.Errorf("transform: unknown axis %q", b)
}

// Inputs are the orientation facts a transform is derived from.
type Inputs struct {
	SensorOrientation int    `json:"sensor_orientation"`
	DisplayRotation   int    `json:"display_rotation"`
	Facing            Facing `json:"facing"`
}

// Parameters are the derived rotation and mirror to apply to each frame.
type Parameters struct {
	Rotation Rotation `json:"rotation"`
	Mirror   Axis     `json:"mirror"`
}

// TotalRotation returns the clockwise rotation that makes the sensor image
// upright on a display rotated by displayRotation from its natural
// orientation. Both inputs are snapped to right angles first.
func TotalRotation(sensorOrientation, displayRotation int) Rotation {
	s := int(Normalize(sensorOrientation))
	d := int(Normalize(displayRotation))
	return Rotation((s - d + 360) % 360)
}

// MirrorFor returns the mirror axis for a frame from a camera with the given
// facing after it has been rotated by r. Only front cameras are mirrored; the
// axis depends on whether the rotation swapped width and height.
func MirrorFor(facing Facing, r Rotation) Axis {
	if facing != FacingFront {
		return AxisNone
	}
	if r.SwapsAxes() {
		return AxisHorizontal
	}
	return AxisVertical
}

// Compute derives the per-frame parameters from in.
func Compute(in Inputs) Parameters {
	r := TotalRotation(in.SensorOrientation, in.DisplayRotation)
	return Parameters{Rotation: r, Mirror: MirrorFor(in.Facing, r)}
}

// DisplayRotationFromSurface maps a surface rotation code (0..3, as reported
// by window managers) to degrees. Unknown codes map to 270.
func DisplayRotationFromSurface(code int) int {
	switch code {
	case 0:
		return 0
	case 1:
		return 90
	case 2:
		return 180
	default:
		return 270
	}
}
