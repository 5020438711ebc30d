package utils

import (
	"fmt"
	"image/color"
	"strings"
)

// HexToRGBA converts a color expressed as hexadecimal string (#rgb or #rrggbb) to RGBA value.
// Invalid values are converted to opaque black.
func HexToRGBA(x string) color.RGBA {
	var r, g, b uint8
	x = strings.TrimPrefix(x, "#")
	c := color.RGBA{A: 0xff}

	switch len(x) {
	case 3:
		if _, err := fmt.Sscanf(x, "%1x%1x%1x", &r, &g, &b); err != nil {
			return c
		}
		c.R, c.G, c.B = r*17, g*17, b*17
	case 6:
		if _, err := fmt.Sscanf(x, "%2x%2x%2x", &r, &g, &b); err != nil {
			return c
		}
		c.R, c.G, c.B = r, g, b
	}
	return c
}
