package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Palette is the set of named colors a widget theme draws with.
type Palette struct {
	Fg         color.RGBA
	Bg         color.RGBA
	Text       color.RGBA
	Base       color.RGBA
	SelectedFg color.RGBA
	SelectedBg color.RGBA
}

// DefaultPalette is used for any color a scheme does not override.
func DefaultPalette() Palette {
	return Palette{
		Fg:         color.RGBA{0x00, 0x00, 0x00, 0xff},
		Bg:         color.RGBA{0xed, 0xec, 0xeb, 0xff},
		Text:       color.RGBA{0x1a, 0x1a, 0x1a, 0xff},
		Base:       color.RGBA{0xff, 0xff, 0xff, 0xff},
		SelectedFg: color.RGBA{0xff, 0xff, 0xff, 0xff},
		SelectedBg: color.RGBA{0x86, 0xab, 0xd9, 0xff},
	}
}

// ParseColorScheme reads a GTK color scheme string of "name:#color" pairs
// separated by newlines or semicolons. Unknown names are ignored; malformed
// colors are an error.
func ParseColorScheme(scheme string) (Palette, error) {
	p := DefaultPalette()
	entries := strings.FieldsFunc(scheme, func(r rune) bool { return r == '\n' || r == ';' })
	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		c, err := ParseHexColor(strings.TrimSpace(value))
		if err != nil {
			return p, fmt.Errorf("color %q: %w", name, err)
		}
		switch name {
		case "fg_color":
			p.Fg = c
		case "bg_color":
			p.Bg = c
		case "text_color":
			p.Text = c
		case "base_color":
			p.Base = c
		case "selected_fg_color":
			p.SelectedFg = c
		case "selected_bg_color":
			p.SelectedBg = c
		}
	}
	return p, nil
}

// ParseHexColor accepts #rgb, #rrggbb and the 16-bit #rrrrggggbbbb form.
func ParseHexColor(s string) (color.RGBA, error) {
	if !strings.HasPrefix(s, "#") {
		return color.RGBA{}, fmt.Errorf("missing '#' in %q", s)
	}
	hex := s[1:]

	var digits int
	switch len(hex) {
	case 3:
		digits = 1
	case 6:
		digits = 2
	case 12:
		digits = 4
	default:
		return color.RGBA{}, fmt.Errorf("bad length in %q", s)
	}

	var ch [3]uint8
	for i := range ch {
		v, err := strconv.ParseUint(hex[i*digits:(i+1)*digits], 16, 16)
		if err != nil {
			return color.RGBA{}, fmt.Errorf("bad digits in %q", s)
		}
		switch digits {
		case 1:
			ch[i] = uint8(v * 0x11)
		case 2:
			ch[i] = uint8(v)
		case 4:
			ch[i] = uint8(v >> 8)
		}
	}
	return color.RGBA{R: ch[0], G: ch[1], B: ch[2], A: 0xff}, nil
}
