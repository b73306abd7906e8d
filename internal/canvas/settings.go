package canvas

import "math"

// Settings is the per-project canvas configuration. Singleton per
// project, last-writer-wins on concurrent update.
type Settings struct {
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	BackgroundColor string  `json:"backgroundColor"`
	GridEnabled     bool    `json:"gridEnabled"`
	SnapToGrid      bool    `json:"snapToGrid"`
	GridSize        float64 `json:"gridSize"`
}

// DefaultSettings returns the settings a fresh project starts with.
func DefaultSettings() Settings {
	return Settings{
		Width:           1920,
		Height:          1080,
		BackgroundColor: "#ffffff",
		GridEnabled:     false,
		SnapToGrid:      false,
		GridSize:        25,
	}
}

// SettingsPatch is a partial settings update; nil fields are untouched.
type SettingsPatch struct {
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	BackgroundColor *string  `json:"backgroundColor,omitempty"`
	GridEnabled     *bool    `json:"gridEnabled,omitempty"`
	SnapToGrid      *bool    `json:"snapToGrid,omitempty"`
	GridSize        *float64 `json:"gridSize,omitempty"`
}

// Apply merges the patch into a copy of s.
func (s Settings) Apply(p SettingsPatch) Settings {
	if p.Width != nil {
		s.Width = *p.Width
	}
	if p.Height != nil {
		s.Height = *p.Height
	}
	if p.BackgroundColor != nil {
		s.BackgroundColor = *p.BackgroundColor
	}
	if p.GridEnabled != nil {
		s.GridEnabled = *p.GridEnabled
	}
	if p.SnapToGrid != nil {
		s.SnapToGrid = *p.SnapToGrid
	}
	if p.GridSize != nil && *p.GridSize > 0 {
		s.GridSize = *p.GridSize
	}
	return s
}

// Snap rounds v to the nearest multiple of grid. A non-positive grid
// leaves v unchanged.
func Snap(v, grid float64) float64 {
	if grid <= 0 {
		return v
	}
	return math.Round(v/grid) * grid
}

// Nudge moves an unlocked element by (dx, dy), snapping the moved axis
// to the grid when snap-to-grid is enabled. Locked elements are left
// alone, mirroring the interaction-layer drag guard.
func Nudge(el *Element, dx, dy float64, s Settings) bool {
	if !el.CanDrag() {
		return false
	}
	el.X += dx
	el.Y += dy
	if s.SnapToGrid {
		if dx != 0 {
			el.X = Snap(el.X, s.GridSize)
		}
		if dy != 0 {
			el.Y = Snap(el.Y, s.GridSize)
		}
	}
	return true
}
