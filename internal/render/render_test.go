package render

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/themethumb/internal/config"
	"github.com/mattjoyce/themethumb/internal/protocol"
)

func installTheme(t *testing.T, base, name string, markers ...string) {
	t.Helper()
	for _, m := range markers {
		p := filepath.Join(base, name, m)
		if filepath.Ext(m) == ".theme" {
			require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
			require.NoError(t, os.WriteFile(p, []byte("[Icon Theme]\nName="+name+"\n"), 0o644))
			continue
		}
		require.NoError(t, os.MkdirAll(p, 0o755))
	}
}

func TestDirRegistryLookup(t *testing.T) {
	themes := t.TempDir()
	icons := t.TempDir()
	installTheme(t, themes, "Clearlooks", "gtk-2.0")
	installTheme(t, themes, "Menta", "gtk-3.0", "metacity-1", "index.theme")
	installTheme(t, icons, "Mate", "index.theme")
	installTheme(t, icons, "Broken")

	reg := NewDirRegistry([]string{filepath.Join(themes, "missing"), themes}, []string{icons})

	tests := []struct {
		kind protocol.Kind
		name string
		want bool
	}{
		{protocol.KindWidget, "Clearlooks", true},
		{protocol.KindWidget, "Menta", true},
		{protocol.KindWindowDecoration, "Clearlooks", false},
		{protocol.KindWindowDecoration, "Menta", true},
		{protocol.KindMeta, "Menta", true},
		{protocol.KindMeta, "Clearlooks", false},
		{protocol.KindIcon, "Mate", true},
		{protocol.KindIcon, "Broken", false},
		{protocol.KindIcon, "Menta", false},
		{protocol.KindWidget, "", false},
		{protocol.KindWidget, "../Clearlooks", false},
	}
	for _, tt := range tests {
		info, ok := reg.Lookup(tt.kind, tt.name)
		assert.Equal(t, tt.want, ok, "%s %q", tt.kind, tt.name)
		if ok {
			assert.Equal(t, tt.name, info.Name)
			assert.Equal(t, tt.kind, info.Kind)
		}
	}
}

func TestParseColorScheme(t *testing.T) {
	p, err := ParseColorScheme("fg_color:#000000\nbg_color:#ededed;selected_bg_color:#f0a;unknown:#123456\n\n")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 0, 0, 0xff}, p.Fg)
	assert.Equal(t, color.RGBA{0xed, 0xed, 0xed, 0xff}, p.Bg)
	assert.Equal(t, color.RGBA{0xff, 0x00, 0xaa, 0xff}, p.SelectedBg)
	assert.Equal(t, DefaultPalette().Base, p.Base)

	p, err = ParseColorScheme("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPalette(), p)

	_, err = ParseColorScheme("fg_color:black")
	assert.Error(t, err)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#ffff80800000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0xff, 0x80, 0x00, 0xff}, c)

	for _, bad := range []string{"fff", "#ff", "#gggggg", "#1234567"} {
		_, err := ParseHexColor(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseFont(t *testing.T) {
	tests := []struct {
		in     string
		family string
		styles []string
		size   float64
		bold   bool
	}{
		{"Sans 10", "Sans", nil, 10, false},
		{"DejaVu Sans Bold Italic 9.5", "DejaVu Sans", []string{"Bold", "Italic"}, 9.5, true},
		{"Monospace", "Monospace", nil, 0, false},
		{"Cantarell Semi-Bold 12px", "Cantarell", []string{"Semi-Bold"}, 12, true},
		{"", "", nil, 0, false},
	}
	for _, tt := range tests {
		fd := ParseFont(tt.in)
		assert.Equal(t, tt.family, fd.Family, tt.in)
		assert.Equal(t, tt.styles, fd.Styles, tt.in)
		assert.Equal(t, tt.size, fd.Size, tt.in)
		assert.Equal(t, tt.bold, fd.Bold(), tt.in)
	}
}

func TestSwatchSizesAndMissingThemes(t *testing.T) {
	sizes := config.Defaults().Thumbnails
	s := NewSwatch(AnyRegistry{}, sizes)
	ctx := context.Background()

	req := &protocol.Request{
		Kind:        protocol.KindMeta,
		WidgetTheme: "Menta",
		ColorScheme: "bg_color:#ededed",
		WindowTheme: "Menta",
		IconTheme:   "mate",
		Font:        "Sans Bold 10",
	}
	for _, kind := range []protocol.Kind{protocol.KindMeta, protocol.KindWidget, protocol.KindWindowDecoration, protocol.KindIcon} {
		r := *req
		r.Kind = kind
		img, err := Dispatch(ctx, s, &r)
		require.NoError(t, err, kind)
		require.NotNil(t, img, kind)
		want := sizes.For(kind)
		assert.Equal(t, want.Width, img.Bounds().Dx(), kind)
		assert.Equal(t, want.Height, img.Bounds().Dy(), kind)
	}

	img, err := s.RenderWidget(ctx, &protocol.Request{Kind: protocol.KindWidget})
	assert.NoError(t, err)
	assert.Nil(t, img)

	empty := NewSwatch(NewDirRegistry(nil, nil), sizes)
	img, err = empty.RenderIcon(ctx, &protocol.Request{Kind: protocol.KindIcon, IconTheme: "Mate"})
	assert.NoError(t, err)
	assert.Nil(t, img)
}

func TestSwatchUsesColorScheme(t *testing.T) {
	s := NewSwatch(AnyRegistry{}, config.Defaults().Thumbnails)
	img, err := s.RenderWidget(context.Background(), &protocol.Request{
		Kind:        protocol.KindWidget,
		WidgetTheme: "Clearlooks",
		ColorScheme: "bg_color:#102030",
	})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0x10, 0x20, 0x30, 0xff}, img.RGBAAt(0, 0))

	_, err = s.RenderWidget(context.Background(), &protocol.Request{
		Kind:        protocol.KindWidget,
		WidgetTheme: "Clearlooks",
		ColorScheme: "bg_color:nope",
	})
	assert.Error(t, err)
}

func TestSwatchHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSwatch(AnyRegistry{}, config.Defaults().Thumbnails)
	_, err := s.RenderMeta(ctx, &protocol.Request{Kind: protocol.KindMeta, WidgetTheme: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDispatchUnknownKind(t *testing.T) {
	_, err := Dispatch(context.Background(), NewSwatch(AnyRegistry{}, config.Defaults().Thumbnails), &protocol.Request{Kind: protocol.Kind(9)})
	assert.ErrorIs(t, err, protocol.ErrUnknownKind)
}
