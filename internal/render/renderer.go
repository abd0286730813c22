// Package render produces thumbnail pixels inside the worker process.
//
// Renderers run in the isolated worker only. Each call builds a private
// rendering context from the request (theme, colors, font), draws onto an
// off-screen RGBA surface sized for the kind, and returns the surface or nil
// when the theme cannot be loaded.
package render

import (
	"context"
	"image"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

//go:generate mockgen -destination=mocks/mock_renderer.go -package=mocks github.com/mattjoyce/themethumb/internal/render Renderer

// Renderer draws one thumbnail per kind. A nil image with a nil error means
// the theme is not available; both nil images and errors are reported to
// the caller as "no thumbnail".
type Renderer interface {
	RenderMeta(ctx context.Context, req *protocol.Request) (*image.RGBA, error)
	RenderWidget(ctx context.Context, req *protocol.Request) (*image.RGBA, error)
	RenderWindowDecoration(ctx context.Context, req *protocol.Request) (*image.RGBA, error)
	RenderIcon(ctx context.Context, req *protocol.Request) (*image.RGBA, error)
}

// Dispatch routes req to the renderer method for its kind.
func Dispatch(ctx context.Context, r Renderer, req *protocol.Request) (*image.RGBA, error) {
	switch req.Kind {
	case protocol.KindMeta:
		return r.RenderMeta(ctx, req)
	case protocol.KindWidget:
		return r.RenderWidget(ctx, req)
	case protocol.KindWindowDecoration:
		return r.RenderWindowDecoration(ctx, req)
	case protocol.KindIcon:
		return r.RenderIcon(ctx, req)
	default:
		return nil, protocol.ErrUnknownKind
	}
}
