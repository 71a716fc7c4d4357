package vec

import "math"

// Vec2 is a point or direction in continuous map space (1 unit = 1 tile).
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Distance(a, b Vec2) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func Magnitude(v Vec2) float64 {
	return math.Hypot(v.X, v.Y)
}

// Difference returns a-b.
func Difference(a, b Vec2) Vec2 {
	return Vec2{X: a.X - b.X, Y: a.Y - b.Y}
}

func Sum(vs ...Vec2) Vec2 {
	var out Vec2
	for _, v := range vs {
		out.X += v.X
		out.Y += v.Y
	}
	return out
}

func Mul(v Vec2, s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

// Clamp scales v down so its magnitude is at most max. Shorter vectors pass through.
func Clamp(v Vec2, max float64) Vec2 {
	m := Magnitude(v)
	if m <= max || m == 0 {
		return v
	}
	return Mul(v, max/m)
}

// AngleFromTo returns the bearing from a to b in [0, 2π).
func AngleFromTo(a, b Vec2) float64 {
	return NormalizeAngle(math.Atan2(b.Y-a.Y, b.X-a.X))
}

// NormalizeAngle maps any angle into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	if a >= 2*math.Pi {
		a = 0
	}
	return a
}

// AngleDistance is the unsigned shortest rotation between two angles.
func AngleDistance(a, b float64) float64 {
	d := math.Abs(NormalizeAngle(a) - NormalizeAngle(b))
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}

// FromAngle returns the unit vector pointing along angle.
func FromAngle(angle float64) Vec2 {
	return Vec2{X: math.Cos(angle), Y: math.Sin(angle)}
}

// Normalize scales v to unit length in place. A zero vector yields NaN components,
// so callers must check the magnitude first.
func Normalize(v *Vec2) {
	m := Magnitude(*v)
	v.X /= m
	v.Y /= m
}

// Set copies src into dst in place.
func Set(dst *Vec2, src Vec2) {
	dst.X = src.X
	dst.Y = src.Y
}

// Add accumulates src into dst in place.
func Add(dst *Vec2, src Vec2) {
	dst.X += src.X
	dst.Y += src.Y
}

// Floor returns the integer tile coordinates containing v.
func Floor(v Vec2) (int, int) {
	return int(math.Floor(v.X)), int(math.Floor(v.Y))
}
