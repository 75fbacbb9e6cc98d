package layout

import "math"

// UDim is a single UI length: a fraction of the parent container plus a fixed pixel offset.
type UDim struct {
	Scale  float64
	Offset float64
}

// UDim2 is a two-axis UDim pair used for both position and size of a button.
type UDim2 struct {
	X UDim
	Y UDim
}

type Vector2 struct {
	X float64
	Y float64
}

func NewUDim2(xScale, xOffset, yScale, yOffset float64) UDim2 {
	return UDim2{X: UDim{Scale: xScale, Offset: xOffset}, Y: UDim{Scale: yScale, Offset: yOffset}}
}

func FromScale(x, y float64) UDim2 {
	return NewUDim2(x, 0, y, 0)
}

func FromOffset(x, y float64) UDim2 {
	return NewUDim2(0, x, 0, y)
}

// Resolve returns the absolute pixel value of u inside a parent of the given absolute size.
func (u UDim2) Resolve(parent Vector2) Vector2 {
	return Vector2{
		X: u.X.Scale*parent.X + u.X.Offset,
		Y: u.Y.Scale*parent.Y + u.Y.Offset,
	}
}

// IsFinite reports whether every component is a real number.
func (u UDim2) IsFinite() bool {
	for _, f := range []float64{u.X.Scale, u.X.Offset, u.Y.Scale, u.Y.Offset} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vector2) Add(o Vector2) Vector2 {
	return Vector2{X: v.X + o.X, Y: v.Y + o.Y}
}

// MaxAxis returns the larger of the two components.
func (v Vector2) MaxAxis() float64 {
	return math.Max(v.X, v.Y)
}

func (v Vector2) MinAxis() float64 {
	return math.Min(v.X, v.Y)
}
