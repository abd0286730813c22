package protocol

import (
	"errors"
	"fmt"
	"image"
)

// Kind identifies which theme category a request concerns.
type Kind int

const (
	KindMeta Kind = iota
	KindWidget
	KindWindowDecoration
	KindIcon
)

// Wire tags. These spellings are part of the protocol and must not change.
const (
	tagMeta             = "meta"
	tagWidget           = "gtk"
	tagWindowDecoration = "marco"
	tagIcon             = "icon"
)

// FieldCount is the number of text fields following the kind tag.
const FieldCount = 5

// MaxDimension bounds the width and height accepted by the response decoder.
const MaxDimension = 16384

var (
	ErrUnknownKind   = errors.New("unknown thumbnail kind")
	ErrInvalidField  = errors.New("field contains NUL byte")
	ErrFrameTooLarge = errors.New("thumbnail frame exceeds maximum dimension")
)

// Tag returns the wire tag for k.
func (k Kind) Tag() string {
	switch k {
	case KindMeta:
		return tagMeta
	case KindWidget:
		return tagWidget
	case KindWindowDecoration:
		return tagWindowDecoration
	case KindIcon:
		return tagIcon
	default:
		return ""
	}
}

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindWidget:
		return "widget"
	case KindWindowDecoration:
		return "window-decoration"
	case KindIcon:
		return "icon"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseTag maps a wire tag back to its Kind.
func ParseTag(tag string) (Kind, error) {
	switch tag {
	case tagMeta:
		return KindMeta, nil
	case tagWidget:
		return KindWidget, nil
	case tagWindowDecoration:
		return KindWindowDecoration, nil
	case tagIcon:
		return KindIcon, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, tag)
	}
}

// ParseKind accepts either the wire tag or the human-readable name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "widget":
		return KindWidget, nil
	case "window-decoration", "wm":
		return KindWindowDecoration, nil
	}
	return ParseTag(s)
}

// Request asks the worker for one thumbnail. Fields a kind does not use are
// left empty but are still sent; positions on the wire are fixed.
type Request struct {
	Kind        Kind
	WidgetTheme string
	ColorScheme string
	WindowTheme string
	IconTheme   string
	Font        string
}

// Fields returns the five text fields in wire order.
func (r *Request) Fields() [FieldCount]string {
	return [FieldCount]string{r.WidgetTheme, r.ColorScheme, r.WindowTheme, r.IconTheme, r.Font}
}

// Theme returns the theme name that identifies this request in logs.
func (r *Request) Theme() string {
	switch r.Kind {
	case KindWindowDecoration:
		return r.WindowTheme
	case KindIcon:
		return r.IconTheme
	default:
		return r.WidgetTheme
	}
}

func requestFromFields(kind Kind, f [FieldCount]string) *Request {
	return &Request{
		Kind:        kind,
		WidgetTheme: f[0],
		ColorScheme: f[1],
		WindowTheme: f[2],
		IconTheme:   f[3],
		Font:        f[4],
	}
}

// Response is a rendered thumbnail. A non-positive width or height is the
// "no thumbnail" sentinel and carries no pixels.
type Response struct {
	Width  int32
	Height int32
	Pixels []byte
}

// Empty reports whether r is the sentinel.
func (r *Response) Empty() bool {
	return r == nil || r.Width <= 0 || r.Height <= 0
}

// Image converts r to an RGBA image, or nil for the sentinel.
func (r *Response) Image() *image.RGBA {
	if r.Empty() {
		return nil
	}
	w, h := int(r.Width), int(r.Height)
	return &image.RGBA{
		Pix:    r.Pixels,
		Stride: w * 4,
		Rect:   image.Rect(0, 0, w, h),
	}
}
