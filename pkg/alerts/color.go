package alerts

import (
	"strings"

	"github.com/pkg/errors"
)

// Color selects the banner style of an Alert.
type Color string

const (
	Dark   Color = "dark"
	Gray   Color = "gray"
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Orange Color = "orange"
)

// Colors lists every supported color in display order.
var Colors = []Color{Dark, Gray, Red, Yellow, Green, Orange}

func (c Color) Valid() bool {
	switch c {
	case Dark, Gray, Red, Yellow, Green, Orange:
		return true
	default:
		return false
	}
}

func (c Color) String() string {
	return string(c)
}

// ParseColor accepts a color name in any case.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", errors.Errorf("unknown alert color %q", s)
	}
	return c, nil
}
