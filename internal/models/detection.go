package models

import (
	"fmt"
	"image/color"
)

// BoundingBox is an axis-aligned box in pixel space.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Clamp returns the box clipped to a width x height frame.
func (b BoundingBox) Clamp(width, height int) BoundingBox {
	x1, y1 := b.X, b.Y
	x2, y2 := b.X+b.Width, b.Y+b.Height
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}

	x1 = clampInt(x1, 0, width)
	x2 = clampInt(x2, 0, width)
	y1 = clampInt(y1, 0, height)
	y2 = clampInt(y2, 0, height)

	return BoundingBox{X: x1, Y: y1, Width: x2 - x1, Height: y2 - y1}
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RawDetection is a detector result before whitelist and threshold filtering.
type RawDetection struct {
	ClassID    int
	Confidence float64
	Box        BoundingBox
}

// Detection represents a whitelisted object found in a frame.
type Detection struct {
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float64     `json:"confidence"`
	Box        BoundingBox `json:"box"`
}

// Label is the text drawn next to the box.
func (d Detection) Label() string {
	return fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence)
}

// ClassSpec is one whitelisted class.
type ClassSpec struct {
	CocoID int
	Name   string
	Color  color.RGBA
}

// Whitelist is the fixed set of classes the pipeline reports on.
type Whitelist struct {
	byID  map[int]ClassSpec
	order []ClassSpec
}

// NewWhitelist builds a whitelist, rejecting duplicate ids or names.
func NewWhitelist(classes []ClassSpec) (*Whitelist, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("whitelist must contain at least one class")
	}

	w := &Whitelist{
		byID:  make(map[int]ClassSpec, len(classes)),
		order: make([]ClassSpec, 0, len(classes)),
	}
	names := make(map[string]bool, len(classes))

	for _, c := range classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class %d has an empty name", c.CocoID)
		}
		if _, dup := w.byID[c.CocoID]; dup {
			return nil, fmt.Errorf("duplicate class id %d", c.CocoID)
		}
		if names[c.Name] {
			return nil, fmt.Errorf("duplicate class name %q", c.Name)
		}
		names[c.Name] = true
		w.byID[c.CocoID] = c
		w.order = append(w.order, c)
	}

	return w, nil
}

// Lookup returns the class for id, if whitelisted.
func (w *Whitelist) Lookup(id int) (ClassSpec, bool) {
	c, ok := w.byID[id]
	return c, ok
}

// Classes returns the classes in configuration order.
func (w *Whitelist) Classes() []ClassSpec {
	out := make([]ClassSpec, len(w.order))
	copy(out, w.order)
	return out
}

// Names returns the class names in configuration order.
func (w *Whitelist) Names() []string {
	names := make([]string, len(w.order))
	for i, c := range w.order {
		names[i] = c.Name
	}
	return names
}

// ColorOf returns the display color for a class name, white if unknown.
func (w *Whitelist) ColorOf(name string) color.RGBA {
	for _, c := range w.order {
		if c.Name == name {
			return c.Color
		}
	}
	return color.RGBA{R: 255, G: 255, B: 255, A: 255}
}
