package caption

import "fmt"

// Settings holds caption presentation configuration. Values are enum
// membership only; the engine carries them for clients but never
// interprets them.
type Settings struct {
	FontSize   string `json:"font_size" yaml:"font_size"`
	Position   string `json:"position" yaml:"position"`
	Background string `json:"background" yaml:"background"`
	TextColor  string `json:"text_color" yaml:"text_color"`
	MaxLines   int    `json:"max_lines" yaml:"max_lines"`
}

var (
	fontSizes   = map[string]bool{"small": true, "medium": true, "large": true, "x-large": true}
	positions   = map[string]bool{"top": true, "bottom": true, "overlay": true}
	backgrounds = map[string]bool{"solid": true, "translucent": true, "none": true}
	textColors  = map[string]bool{"white": true, "yellow": true, "cyan": true, "black": true}
)

// Validate rejects settings with values outside the known enums.
func (s Settings) Validate() error {
	switch {
	case !ValidFontSize(s.FontSize):
		return fmt.Errorf("unknown font size %q", s.FontSize)
	case !ValidPosition(s.Position):
		return fmt.Errorf("unknown position %q", s.Position)
	case !ValidBackground(s.Background):
		return fmt.Errorf("unknown background %q", s.Background)
	case !ValidTextColor(s.TextColor):
		return fmt.Errorf("unknown text color %q", s.TextColor)
	case s.MaxLines < 1:
		return fmt.Errorf("max lines must be at least 1, got %d", s.MaxLines)
	}
	return nil
}

// ValidFontSize reports whether v names a known caption font size.
func ValidFontSize(v string) bool { return fontSizes[v] }

// ValidPosition reports whether v names a known caption position.
func ValidPosition(v string) bool { return positions[v] }

// ValidBackground reports whether v names a known caption background style.
func ValidBackground(v string) bool { return backgrounds[v] }

// ValidTextColor reports whether v names a known caption text color.
func ValidTextColor(v string) bool { return textColors[v] }
