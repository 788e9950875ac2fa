package transform

import "testing"

var rightAngles = []int{0, 90, 180, 270}

func TestTotalRotation_AlwaysRightAngle(t *testing.T) {
	for _, sensor := range rightAngles {
		for _, display := range rightAngles {
			r := TotalRotation(sensor, display)
			if !r.Valid() {
				t.Errorf("TotalRotation(%d, %d) = %d, not a right angle", sensor, display, r)
			}
			want := Rotation((sensor - display + 360) % 360)
			if r != want {
				t.Errorf("TotalRotation(%d, %d) = %d, want %d", sensor, display, r, want)
			}
		}
	}
}

func TestTotalRotation_Examples(t *testing.T) {
	tests := []struct {
		sensor, display int
		want            Rotation
	}{
		{90, 0, Rotate90},
		{270, 0, Rotate270},
		{90, 90, Rotate0},
		{0, 90, Rotate270},
		{270, 180, Rotate90},
	}
	for _, tc := range tests {
		if got := TotalRotation(tc.sensor, tc.display); got != tc.want {
			t.Errorf("TotalRotation(%d, %d) = %d, want %d", tc.sensor, tc.display, got, tc.want)
		}
	}
}

func TestMirrorFor(t *testing.T) {
	tests := []struct {
		name   string
		facing Facing
		rot    Rotation
		want   Axis
	}{
		{"back never mirrors", FacingBack, Rotate90, AxisNone},
		{"external never mirrors", FacingExternal, Rotate0, AxisNone},
		{"front 90 mirrors horizontally", FacingFront, Rotate90, AxisHorizontal},
		{"front 270 mirrors horizontally", FacingFront, Rotate270, AxisHorizontal},
		{"front 0 mirrors vertically", FacingFront, Rotate0, AxisVertical},
		{"front 180 mirrors vertically", FacingFront, Rotate180, AxisVertical},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MirrorFor(tc.facing, tc.rot); got != tc.want {
				t.Errorf("MirrorFor(%v, %d) = %v, want %v", tc.facing, tc.rot, got, tc.want)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	front := Compute(Inputs{SensorOrientation: 90, DisplayRotation: 0, Facing: FacingFront})
	if front.Rotation != Rotate90 || front.Mirror != AxisHorizontal {
		t.Errorf("front camera: got %+v, want rotation 90 mirror horizontal", front)
	}

	back := Compute(Inputs{SensorOrientation: 90, DisplayRotation: 0, Facing: FacingBack})
	if back.Rotation != Rotate90 || back.Mirror != AxisNone {
		t.Errorf("back camera: got %+v, want rotation 90 mirror none", back)
	}
}

func TestNormalize(t *testing.T) {
	tests := map[int]Rotation{
		0:    Rotate0,
		90:   Rotate90,
		360:  Rotate0,
		450:  Rotate90,
		-90:  Rotate270,
		-180: Rotate180,
		89:   Rotate90,
		44:   Rotate0,
		315:  Rotate0,
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRotation_Inverse(t *testing.T) {
	for _, d := range rightAngles {
		r := Rotation(d)
		if got := Normalize(int(r) + int(r.Inverse())); got != Rotate0 {
			t.Errorf("%d + inverse %d = %d, want 0", r, r.Inverse(), got)
		}
	}
}

func TestParseFacing(t *testing.T) {
	for _, f := range []Facing{FacingFront, FacingBack, FacingExternal} {
		got, err := ParseFacing(f.String())
		if err != nil || got != f {
			t.Errorf("ParseFacing(%q) = %v, %v", f.String(), got, err)
		}
	}
	if _, err := ParseFacing("sideways"); err == nil {
		t.Error("expected error for unknown facing")
	}
}

func TestDisplayRotationFromSurface(t *testing.T) {
	want := []int{0, 90, 180, 270}
	for code, deg := range want {
		if got := DisplayRotationFromSurface(code); got != deg {
			t.Errorf("DisplayRotationFromSurface(%d) = %d, want %d", code, got, deg)
		}
	}
}
