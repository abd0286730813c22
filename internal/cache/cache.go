// Package cache stores rendered thumbnails in SQLite so repeated previews of
// the same theme skip the renderer.
package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/themethumb/internal/protocol"
)

// keyVersion is mixed into every key; bump it when rendering output changes.
const keyVersion = "swatch/1"

// timeLayout is fixed width so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Cache is a thumbnail store keyed by request digest.
type Cache struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Cache {
	return &Cache{db: db, now: time.Now}
}

// Key returns the BLAKE3 digest of the request's wire form and the surface
// size it will be rendered at.
func Key(req *protocol.Request, width, height int) (string, error) {
	wire, err := protocol.MarshalRequest(req)
	if err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}

	h := blake3.New()
	_, _ = h.Write([]byte(keyVersion))
	_, _ = h.Write(wire)
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:4], uint32(width))
	binary.LittleEndian.PutUint32(dims[4:8], uint32(height))
	_, _ = h.Write(dims[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get returns the cached thumbnail for key. Returns (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, key string) (*image.RGBA, error) {
	var (
		width, height int
		pixels        []byte
	)
	err := c.db.QueryRowContext(ctx, `
SELECT width, height, pixels FROM thumbnail_cache WHERE key = ?;
`, key).Scan(&width, &height, &pixels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thumbnail: %w", err)
	}
	if width <= 0 || height <= 0 || len(pixels) != width*height*4 {
		return nil, fmt.Errorf("get thumbnail: corrupt entry %s (%dx%d, %d bytes)", key, width, height, len(pixels))
	}

	_, _ = c.db.ExecContext(ctx, `UPDATE thumbnail_cache SET last_hit_at = ? WHERE key = ?;`,
		c.now().UTC().Format(timeLayout), key)

	resp := protocol.Response{Width: int32(width), Height: int32(height), Pixels: pixels}
	return resp.Image(), nil
}

// Put stores img under key. Nil images are not cached.
func (c *Cache) Put(ctx context.Context, key string, req *protocol.Request, img *image.RGBA) error {
	if img == nil || img.Bounds().Empty() {
		return nil
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixels := make([]byte, 0, w*h*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		pixels = append(pixels, img.Pix[off:off+w*4]...)
	}

	_, err := c.db.ExecContext(ctx, `
INSERT INTO thumbnail_cache(key, kind, theme, width, height, pixels, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
  width = excluded.width,
  height = excluded.height,
  pixels = excluded.pixels,
  created_at = excluded.created_at;
`, key, req.Kind.Tag(), req.Theme(), w, h, pixels, c.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("put thumbnail: %w", err)
	}
	return nil
}

// Prune deletes entries created more than maxAge ago and returns how many
// were removed.
func (c *Cache) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := c.now().Add(-maxAge).UTC().Format(timeLayout)
	res, err := c.db.ExecContext(ctx, `DELETE FROM thumbnail_cache WHERE created_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune thumbnails: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune thumbnails: %w", err)
	}
	return n, nil
}

// Len reports the number of cached thumbnails.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM thumbnail_cache;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count thumbnails: %w", err)
	}
	return n, nil
}
