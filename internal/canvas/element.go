// Package canvas holds the shared element model and the reconciliation
// store that applies local and remote mutations to it.
package canvas

import (
	"errors"
	"fmt"
)

// ElementType identifies the variant of a canvas element.
type ElementType string

const (
	TypeRectangle ElementType = "rectangle"
	TypeCircle    ElementType = "circle"
	TypeTriangle  ElementType = "triangle"
	TypeText      ElementType = "text"
	TypeLine      ElementType = "line"
	TypeArrow     ElementType = "arrow"
	TypeImage     ElementType = "image"
	TypePolygon   ElementType = "polygon"
	TypeFreehand  ElementType = "freehand"
)

var validTypes = map[ElementType]bool{
	TypeRectangle: true,
	TypeCircle:    true,
	TypeTriangle:  true,
	TypeText:      true,
	TypeLine:      true,
	TypeArrow:     true,
	TypeImage:     true,
	TypePolygon:   true,
	TypeFreehand:  true,
}

// Valid reports whether t belongs to the closed type set.
func (t ElementType) Valid() bool {
	return validTypes[t]
}

var (
	ErrMissingID      = errors.New("element id is required")
	ErrInvalidType    = errors.New("unknown element type")
	ErrInvalidBounds  = errors.New("element width and height must be positive")
	ErrInvalidOpacity = errors.New("element opacity must be between 0 and 1")
)

// Effect is a named visual filter attached to an element.
type Effect struct {
	Enabled bool               `json:"enabled"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// Element is one visual object on the canvas. Content fields are
// type-gated: Validate enforces which ones a given variant requires.
type Element struct {
	ID       string      `json:"id"`
	Type     ElementType `json:"type"`
	X        float64     `json:"x"`
	Y        float64     `json:"y"`
	Width    float64     `json:"width"`
	Height   float64     `json:"height"`
	Rotation float64     `json:"rotation"`
	Opacity  float64     `json:"opacity"`

	Fill        string            `json:"fill,omitempty"`
	Stroke      string            `json:"stroke,omitempty"`
	StrokeWidth float64           `json:"strokeWidth,omitempty"`
	BlendMode   string            `json:"blendMode,omitempty"`
	Effects     map[string]Effect `json:"effects,omitempty"`

	Text       string  `json:"text,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`
	Src        string  `json:"src,omitempty"`

	Points []float64 `json:"points,omitempty"`

	// ZIndex is nil when the client left paint order to the server.
	ZIndex  *int `json:"zIndex,omitempty"`
	Visible bool `json:"visible"`
	Locked  bool `json:"locked"`
}

// Z returns the effective paint-order value.
func (e *Element) Z() int {
	if e.ZIndex == nil {
		return 0
	}
	return *e.ZIndex
}

// Validate checks the invariants shared by all variants plus the
// per-variant content requirements.
func (e *Element) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, e.Type)
	}
	if e.Width <= 0 || e.Height <= 0 {
		return ErrInvalidBounds
	}
	if e.Opacity < 0 || e.Opacity > 1 {
		return ErrInvalidOpacity
	}

	switch e.Type {
	case TypeText:
		if e.FontSize < 0 {
			return fmt.Errorf("text element %s: negative font size", e.ID)
		}
	case TypeImage:
		if e.Src == "" {
			return fmt.Errorf("image element %s: src is required", e.ID)
		}
	case TypeLine, TypeArrow:
		if len(e.Points) != 0 && len(e.Points) < 4 {
			return fmt.Errorf("%s element %s: needs at least two points", e.Type, e.ID)
		}
	case TypePolygon, TypeFreehand:
		if len(e.Points) < 4 {
			return fmt.Errorf("%s element %s: needs at least two points", e.Type, e.ID)
		}
	}
	return nil
}

// Clone returns a deep copy; mutating the copy never aliases the original.
func (e Element) Clone() Element {
	out := e
	if e.ZIndex != nil {
		z := *e.ZIndex
		out.ZIndex = &z
	}
	if e.Points != nil {
		out.Points = append([]float64(nil), e.Points...)
	}
	if e.Effects != nil {
		out.Effects = make(map[string]Effect, len(e.Effects))
		for name, fx := range e.Effects {
			cp := fx
			if fx.Params != nil {
				cp.Params = make(map[string]float64, len(fx.Params))
				for k, v := range fx.Params {
					cp.Params[k] = v
				}
			}
			out.Effects[name] = cp
		}
	}
	return out
}

// CloneElements deep-copies a whole collection preserving order.
func CloneElements(els []Element) []Element {
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = el.Clone()
	}
	return out
}

// CanDrag reports whether pointer-drag interactions may move or resize
// the element. Lock is advisory: it gates the interaction layer, not the
// store, so remote updates to locked elements still apply.
func (e *Element) CanDrag() bool {
	return !e.Locked
}
