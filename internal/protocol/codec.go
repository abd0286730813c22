package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
)

const headerSize = 8

// pixelChunk bounds how far pixel buffers grow ahead of received data.
const pixelChunk = 64 * 1024

// EncodeRequest writes req as a NUL-terminated kind tag followed by the five
// NUL-terminated fields.
func EncodeRequest(w io.Writer, req *Request) error {
	tag := req.Kind.Tag()
	if tag == "" {
		return fmt.Errorf("encode request: %w: %d", ErrUnknownKind, int(req.Kind))
	}

	var buf bytes.Buffer
	buf.WriteString(tag)
	buf.WriteByte(0)
	for i, field := range req.Fields() {
		if strings.IndexByte(field, 0) >= 0 {
			return fmt.Errorf("encode request: field %d: %w", i+1, ErrInvalidField)
		}
		buf.WriteString(field)
		buf.WriteByte(0)
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	return nil
}

// MarshalRequest returns the wire form of req.
func MarshalRequest(req *Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeRequest(&buf, req); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type decodeState int

const (
	awaitingKind decodeState = iota
	readingKind
	readingField1
	readingField2
	readingField3
	readingField4
	readingField5
	ready
)

// RequestDecoder reassembles requests from arbitrarily chunked input.
// Bytes past a terminator are kept for the next message.
type RequestDecoder struct {
	state   decodeState
	pending []byte
	cur     bytes.Buffer
	tag     string
	fields  [FieldCount]string
}

func NewRequestDecoder() *RequestDecoder {
	return &RequestDecoder{}
}

// Feed appends p to the decoder's input.
func (d *RequestDecoder) Feed(p []byte) {
	d.pending = append(d.pending, p...)
}

// Buffered reports how many fed bytes have not been consumed yet.
func (d *RequestDecoder) Buffered() int {
	return len(d.pending) + d.cur.Len()
}

// Next returns the next complete request. It returns (nil, false, nil) when
// more data is needed. A frame with an unknown tag is consumed entirely and
// reported as ErrUnknownKind.
func (d *RequestDecoder) Next() (*Request, bool, error) {
	for {
		if d.state == ready {
			return d.finish()
		}
		if len(d.pending) == 0 {
			return nil, false, nil
		}
		if d.state == awaitingKind {
			d.state = readingKind
		}

		i := bytes.IndexByte(d.pending, 0)
		if i < 0 {
			d.cur.Write(d.pending)
			d.pending = d.pending[:0]
			return nil, false, nil
		}

		d.cur.Write(d.pending[:i])
		d.pending = d.pending[i+1:]
		value := d.cur.String()
		d.cur.Reset()

		if d.state == readingKind {
			d.tag = value
		} else {
			d.fields[d.state-readingField1] = value
		}
		d.state++
	}
}

func (d *RequestDecoder) finish() (*Request, bool, error) {
	tag, fields := d.tag, d.fields
	d.state = awaitingKind
	d.tag = ""
	d.fields = [FieldCount]string{}
	if len(d.pending) == 0 {
		d.pending = nil
	}

	kind, err := ParseTag(tag)
	if err != nil {
		return nil, false, err
	}
	return requestFromFields(kind, fields), true, nil
}

// EncodeResponse writes img as a response frame. A nil or empty image is
// written as the sentinel. Rows are copied one at a time so images with
// padded strides are handled.
func EncodeResponse(w io.Writer, img *image.RGBA) error {
	var width, height int32
	if img != nil {
		b := img.Bounds()
		width, height = int32(b.Dx()), int32(b.Dy())
	}
	if width <= 0 || height <= 0 {
		width, height = 0, 0
	}

	bw := bufio.NewWriter(w)
	var hdr [headerSize]byte
	binary.NativeEndian.PutUint32(hdr[0:4], uint32(width))
	binary.NativeEndian.PutUint32(hdr[4:8], uint32(height))
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write response header: %w", err)
	}

	if width > 0 {
		b := img.Bounds()
		rowLen := int(width) * 4
		for y := b.Min.Y; y < b.Max.Y; y++ {
			off := img.PixOffset(b.Min.X, y)
			if _, err := bw.Write(img.Pix[off : off+rowLen]); err != nil {
				return fmt.Errorf("failed to write response row %d: %w", y-b.Min.Y, err)
			}
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}
	return nil
}

// MarshalResponse returns the wire form of img.
func MarshalResponse(img *image.RGBA) []byte {
	var buf bytes.Buffer
	_ = EncodeResponse(&buf, img)
	return buf.Bytes()
}

// ResponseDecoder reassembles one response from arbitrarily chunked input.
type ResponseDecoder struct {
	header [headerSize]byte
	nhdr   int
	resp *Response
	// want is the pixel byte count announced by the header. Pixels grows
	// as bytes arrive so a lying header cannot force a large allocation.
	want int
	done bool
}

func NewResponseDecoder() *ResponseDecoder {
	return &ResponseDecoder{}
}

// Feed consumes bytes from p and reports the number used. Once the response
// is complete, remaining bytes are left unconsumed and Done returns true.
func (d *ResponseDecoder) Feed(p []byte) (int, error) {
	used := 0
	if d.done {
		return 0, nil
	}

	if d.nhdr < headerSize {
		n := copy(d.header[d.nhdr:], p)
		d.nhdr += n
		used += n
		p = p[n:]
		if d.nhdr < headerSize {
			return used, nil
		}

		width := int32(binary.NativeEndian.Uint32(d.header[0:4]))
		height := int32(binary.NativeEndian.Uint32(d.header[4:8]))
		if width <= 0 || height <= 0 {
			d.resp = &Response{Width: width, Height: height}
			d.done = true
			return used, nil
		}
		if width > MaxDimension || height > MaxDimension {
			return used, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, width, height)
		}
		d.want = int(width) * int(height) * 4
		d.resp = &Response{
			Width:  width,
			Height: height,
			Pixels: make([]byte, 0, min(d.want, pixelChunk)),
		}
	}

	n := min(len(p), d.want-len(d.resp.Pixels))
	d.resp.Pixels = append(d.resp.Pixels, p[:n]...)
	used += n
	if len(d.resp.Pixels) == d.want {
		d.done = true
	}
	return used, nil
}

// Done reports whether a full response has been assembled.
func (d *ResponseDecoder) Done() bool {
	return d.done
}

// Response returns the assembled response, or nil if it is still incomplete.
func (d *ResponseDecoder) Response() *Response {
	if !d.done {
		return nil
	}
	return d.resp
}

// Reset prepares the decoder for a new response.
func (d *ResponseDecoder) Reset() {
	*d = ResponseDecoder{}
}

// DecodeResponse reads exactly one response from r and nothing past it, so
// frames can be decoded back to back from the same stream.
func DecodeResponse(r io.Reader) (*Response, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, readErr(err)
	}
	width := int32(binary.NativeEndian.Uint32(hdr[0:4]))
	height := int32(binary.NativeEndian.Uint32(hdr[4:8]))
	if width <= 0 || height <= 0 {
		return &Response{Width: width, Height: height}, nil
	}
	if width > MaxDimension || height > MaxDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, width, height)
	}

	want := int(width) * int(height) * 4
	pixels := make([]byte, 0, min(want, pixelChunk))
	for len(pixels) < want {
		n := min(want-len(pixels), pixelChunk)
		start := len(pixels)
		pixels = append(pixels, make([]byte, n)...)
		if _, err := io.ReadFull(r, pixels[start:]); err != nil {
			return nil, readErr(err)
		}
	}
	return &Response{Width: width, Height: height, Pixels: pixels}, nil
}

func readErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.ErrUnexpectedEOF
	}
	return fmt.Errorf("failed to read response: %w", err)
}
