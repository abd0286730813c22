package render

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/zeebo/blake3"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/protocol"
)

// Swatch renders flat preview swatches: a few representative widgets, a
// window frame, or a grid of icon tiles, colored from the request's scheme.
type Swatch struct {
	registry Registry
	sizes    config.ThumbnailsConfig
}

func NewSwatch(registry Registry, sizes config.ThumbnailsConfig) *Swatch {
	return &Swatch{registry: registry, sizes: sizes}
}

// renderContext is the per-request drawing state. It is built fresh for
// every render and never shared.
type renderContext struct {
	palette Palette
	font    FontDesc
	face    font.Face
}

func newRenderContext(req *protocol.Request) (*renderContext, error) {
	palette, err := ParseColorScheme(req.ColorScheme)
	if err != nil {
		return nil, fmt.Errorf("color scheme: %w", err)
	}
	return &renderContext{
		palette: palette,
		font:    ParseFont(req.Font),
		face:    basicfont.Face7x13,
	}, nil
}

func (s *Swatch) surface(kind protocol.Kind) *image.RGBA {
	size := s.sizes.For(kind)
	return image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
}

func (s *Swatch) RenderWidget(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Lookup(protocol.KindWidget, req.WidgetTheme); !ok {
		return nil, nil
	}
	rc, err := newRenderContext(req)
	if err != nil {
		return nil, err
	}

	img := s.surface(protocol.KindWidget)
	rc.drawWidgets(img, img.Bounds(), req.WidgetTheme)
	return img, nil
}

func (s *Swatch) RenderWindowDecoration(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Lookup(protocol.KindWindowDecoration, req.WindowTheme); !ok {
		return nil, nil
	}
	rc, err := newRenderContext(req)
	if err != nil {
		return nil, err
	}

	img := s.surface(protocol.KindWindowDecoration)
	rc.drawFrame(img, img.Bounds(), req.WindowTheme)
	return img, nil
}

func (s *Swatch) RenderIcon(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Lookup(protocol.KindIcon, req.IconTheme); !ok {
		return nil, nil
	}
	rc, err := newRenderContext(req)
	if err != nil {
		return nil, err
	}

	img := s.surface(protocol.KindIcon)
	fillRect(img, img.Bounds(), color.RGBA{})
	rc.drawIconGrid(img, img.Bounds(), req.IconTheme, 2)
	return img, nil
}

// RenderMeta composes a window frame around the widget swatch with a strip
// of icons along the bottom. The widget theme is required; a missing window
// or icon theme leaves that part out.
func (s *Swatch) RenderMeta(ctx context.Context, req *protocol.Request) (*image.RGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := s.registry.Lookup(protocol.KindWidget, req.WidgetTheme); !ok {
		return nil, nil
	}
	rc, err := newRenderContext(req)
	if err != nil {
		return nil, err
	}

	img := s.surface(protocol.KindMeta)
	b := img.Bounds()
	fillRect(img, b, rc.palette.Bg)

	strip := b.Dy() / 4
	windowArea := image.Rect(b.Min.X+2, b.Min.Y+2, b.Max.X-2, b.Max.Y-strip-2)
	client := windowArea
	if _, ok := s.registry.Lookup(protocol.KindWindowDecoration, req.WindowTheme); ok {
		client = rc.drawFrame(img, windowArea, req.WindowTheme)
	}
	rc.drawWidgets(img, client, req.WidgetTheme)

	if _, ok := s.registry.Lookup(protocol.KindIcon, req.IconTheme); ok {
		iconArea := image.Rect(b.Min.X+2, b.Max.Y-strip, b.Max.X-2, b.Max.Y-1)
		rc.drawIconStrip(img, iconArea, req.IconTheme)
	}
	return img, nil
}

func (rc *renderContext) drawWidgets(dst *image.RGBA, r image.Rectangle, theme string) {
	p := rc.palette
	fillRect(dst, r, p.Bg)
	accent := accentFor(theme, 0)

	pad := max(2, r.Dx()/12)
	rowH := max(6, r.Dy()/4)

	button := image.Rect(r.Min.X+pad, r.Min.Y+pad, r.Max.X-pad, r.Min.Y+pad+rowH)
	fillRect(dst, button, shade(p.Bg, 1.08))
	strokeRect(dst, button, mix(p.Fg, accent))
	rc.drawLabel(dst, button.Inset(2), "Aa", p.Fg)

	box := image.Rect(r.Min.X+pad, button.Max.Y+pad, r.Min.X+pad+rowH-2, button.Max.Y+pad+rowH-2)
	fillRect(dst, box, p.Base)
	strokeRect(dst, box, p.Fg)
	fillRect(dst, box.Inset(max(2, box.Dx()/4)), p.SelectedBg)

	entry := image.Rect(box.Max.X+pad, box.Min.Y, r.Max.X-pad, box.Max.Y)
	fillRect(dst, entry, p.Base)
	strokeRect(dst, entry, shade(p.Fg, 0.8))
	rc.drawLabel(dst, entry.Inset(1), "abc", p.Text)

	selection := image.Rect(r.Min.X+pad, box.Max.Y+pad, r.Max.X-pad, min(r.Max.Y-pad, box.Max.Y+pad+rowH))
	fillRect(dst, selection, p.SelectedBg)
	rc.drawLabel(dst, selection.Inset(1), theme, p.SelectedFg)
}

// drawFrame draws a window decoration in r and returns the client area.
func (rc *renderContext) drawFrame(dst *image.RGBA, r image.Rectangle, theme string) image.Rectangle {
	p := rc.palette
	accent := accentFor(theme, 0)
	border := max(1, r.Dx()/40)
	titleH := min(18, max(8, r.Dy()/3))

	fillRect(dst, r, shade(accent, 0.7))
	title := image.Rect(r.Min.X+border, r.Min.Y+border, r.Max.X-border, r.Min.Y+border+titleH)
	fillRect(dst, title, accent)

	btn := titleH - 6
	x := title.Max.X - 3
	for i := 0; i < 3 && btn > 1; i++ {
		b := image.Rect(x-btn, title.Min.Y+3, x, title.Min.Y+3+btn)
		fillRect(dst, b, shade(accent, 1.3))
		strokeRect(dst, b, shade(accent, 0.5))
		x -= btn + 3
	}
	titleText := image.Rect(title.Min.X+3, title.Min.Y, x, title.Max.Y)
	rc.drawLabel(dst, titleText, theme, p.SelectedFg)

	client := image.Rect(r.Min.X+border, title.Max.Y, r.Max.X-border, r.Max.Y-border)
	fillRect(dst, client, p.Bg)
	return client
}

func (rc *renderContext) drawIconGrid(dst *image.RGBA, r image.Rectangle, theme string, n int) {
	cellW, cellH := r.Dx()/n, r.Dy()/n
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			cell := image.Rect(r.Min.X+col*cellW, r.Min.Y+row*cellH, r.Min.X+(col+1)*cellW, r.Min.Y+(row+1)*cellH)
			drawIconTile(dst, cell.Inset(max(1, cellW/8)), accentFor(theme, row*n+col+1))
		}
	}
}

func (rc *renderContext) drawIconStrip(dst *image.RGBA, r image.Rectangle, theme string) {
	side := r.Dy()
	if side <= 2 {
		return
	}
	for i, x := 0, r.Min.X; x+side <= r.Max.X && i < 4; i, x = i+1, x+side+2 {
		drawIconTile(dst, image.Rect(x, r.Min.Y, x+side, r.Max.Y).Inset(1), accentFor(theme, i+1))
	}
}

// drawIconTile draws a folder-like glyph: a body with a darker tab.
func drawIconTile(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	tabH := max(1, r.Dy()/5)
	tab := image.Rect(r.Min.X, r.Min.Y, r.Min.X+r.Dx()/2, r.Min.Y+tabH)
	body := image.Rect(r.Min.X, r.Min.Y+tabH, r.Max.X, r.Max.Y)
	fillRect(dst, tab, shade(c, 0.75))
	fillRect(dst, body, c)
	strokeRect(dst, body, shade(c, 0.6))
}

// drawLabel draws text clipped to r and vertically centred. Text that does
// not fit is shortened from the end.
func (rc *renderContext) drawLabel(dst *image.RGBA, r image.Rectangle, text string, c color.RGBA) {
	if r.Empty() || text == "" {
		return
	}
	clip, ok := dst.SubImage(r).(*image.RGBA)
	if !ok {
		return
	}

	runes := []rune(text)
	for len(runes) > 0 && font.MeasureString(rc.face, string(runes)).Ceil() > r.Dx() {
		runes = runes[:len(runes)-1]
	}
	if len(runes) == 0 {
		return
	}

	m := rc.face.Metrics()
	textH := (m.Ascent + m.Descent).Ceil()
	baseline := r.Min.Y + (r.Dy()-textH)/2 + m.Ascent.Ceil()

	d := &font.Drawer{
		Dst:  clip,
		Src:  image.NewUniform(c),
		Face: rc.face,
		Dot:  fixed.P(r.Min.X+1, baseline),
	}
	d.DrawString(string(runes))
	if rc.font.Bold() {
		d.Dot = fixed.P(r.Min.X+2, baseline)
		d.DrawString(string(runes))
	}
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func strokeRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	if r.Empty() {
		return
	}
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1), c)
	fillRect(dst, image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y), c)
	fillRect(dst, image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y), c)
}

// accentFor derives a stable, saturated color from a theme name.
func accentFor(theme string, salt int) color.RGBA {
	sum := blake3.Sum256([]byte(fmt.Sprintf("%s#%d", theme, salt)))
	return color.RGBA{R: 64 + sum[0]/2, G: 64 + sum[1]/2, B: 64 + sum[2]/2, A: 0xff}
}

func shade(c color.RGBA, f float64) color.RGBA {
	ch := func(v uint8) uint8 {
		x := float64(v) * f
		if x > 255 {
			return 255
		}
		return uint8(x)
	}
	return color.RGBA{R: ch(c.R), G: ch(c.G), B: ch(c.B), A: c.A}
}

func mix(a, b color.RGBA) color.RGBA {
	return color.RGBA{
		R: uint8((int(a.R) + int(b.R)) / 2),
		G: uint8((int(a.G) + int(b.G)) / 2),
		B: uint8((int(a.B) + int(b.B)) / 2),
		A: 0xff,
	}
}
