package render

import (
	"strconv"
	"strings"
)

// FontDesc is a parsed font description such as "Sans Bold Italic 10".
type FontDesc struct {
	Family string
	Styles []string
	Size   float64
}

var styleWords = map[string]bool{
	"bold": true, "italic": true, "oblique": true, "light": true,
	"medium": true, "semibold": true, "heavy": true, "condensed": true,
	"regular": true, "book": true, "ultra-bold": true, "semi-bold": true,
}

// ParseFont splits a description into family, style words and point size.
// The trailing size is optional.
func ParseFont(desc string) FontDesc {
	words := strings.Fields(desc)
	var fd FontDesc

	if n := len(words); n > 0 {
		if size, err := strconv.ParseFloat(strings.TrimSuffix(words[n-1], "px"), 64); err == nil && size > 0 {
			fd.Size = size
			words = words[:n-1]
		}
	}
	for len(words) > 0 && styleWords[strings.ToLower(words[len(words)-1])] {
		fd.Styles = append([]string{words[len(words)-1]}, fd.Styles...)
		words = words[:len(words)-1]
	}
	fd.Family = strings.Join(words, " ")
	return fd
}

// Bold reports whether the description asks for a heavy weight.
func (f FontDesc) Bold() bool {
	for _, s := range f.Styles {
		switch strings.ToLower(s) {
		case "bold", "semibold", "semi-bold", "heavy", "ultra-bold":
			return true
		}
	}
	return false
}
