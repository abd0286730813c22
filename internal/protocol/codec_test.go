package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
)

func sampleRequests() []*Request {
	return []*Request{
		{Kind: KindMeta, WidgetTheme: "Menta", ColorScheme: "fg_color:#000000\nbg_color:#ededed", WindowTheme: "Menta", IconTheme: "mate", Font: "Sans 10"},
		{Kind: KindWidget, WidgetTheme: "Clearlooks"},
		{Kind: KindWindowDecoration, WindowTheme: "TraditionalOk"},
		{Kind: KindIcon, IconTheme: "Mate"},
		{Kind: KindIcon},
	}
}

func TestEncodeRequestLayout(t *testing.T) {
	data, err := MarshalRequest(&Request{Kind: KindWidget, WidgetTheme: "Clearlooks", ColorScheme: "x"})
	if err != nil {
		t.Fatalf("MarshalRequest: %v", err)
	}
	want := []byte("gtk\x00Clearlooks\x00x\x00\x00\x00\x00")
	if !bytes.Equal(data, want) {
		t.Fatalf("wire bytes = %q, want %q", data, want)
	}
}

func TestEncodeRequestTags(t *testing.T) {
	tests := []struct {
		kind Kind
		tag  string
	}{
		{KindMeta, "meta"},
		{KindWidget, "gtk"},
		{KindWindowDecoration, "marco"},
		{KindIcon, "icon"},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			data, err := MarshalRequest(&Request{Kind: tt.kind})
			if err != nil {
				t.Fatalf("MarshalRequest: %v", err)
			}
			if !bytes.HasPrefix(data, []byte(tt.tag+"\x00")) {
				t.Fatalf("got %q, want tag %q", data, tt.tag)
			}
			if n := bytes.Count(data, []byte{0}); n != FieldCount+1 {
				t.Fatalf("expected %d terminators, got %d", FieldCount+1, n)
			}
		})
	}
}

func TestEncodeRequestRejectsNUL(t *testing.T) {
	_, err := MarshalRequest(&Request{Kind: KindIcon, IconTheme: "bad\x00name"})
	if !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
	_, err = MarshalRequest(&Request{Kind: Kind(42)})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func decodeAll(t *testing.T, data []byte, chunk int) []*Request {
	t.Helper()
	d := NewRequestDecoder()
	var out []*Request
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		d.Feed(data[:n])
		data = data[n:]
		for {
			req, ok, err := d.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if !ok {
				break
			}
			out = append(out, req)
		}
	}
	if d.Buffered() != 0 {
		t.Fatalf("decoder left %d bytes buffered", d.Buffered())
	}
	return out
}

func TestRequestRoundTripChunking(t *testing.T) {
	reqs := sampleRequests()
	var stream []byte
	for _, r := range reqs {
		b, err := MarshalRequest(r)
		if err != nil {
			t.Fatalf("MarshalRequest: %v", err)
		}
		stream = append(stream, b...)
	}

	for _, chunk := range []int{1, 2, 3, 7, 16, len(stream)} {
		got := decodeAll(t, stream, chunk)
		if len(got) != len(reqs) {
			t.Fatalf("chunk %d: decoded %d requests, want %d", chunk, len(got), len(reqs))
		}
		for i := range reqs {
			if *got[i] != *reqs[i] {
				t.Errorf("chunk %d: request %d = %+v, want %+v", chunk, i, *got[i], *reqs[i])
			}
		}
	}
}

func TestRequestDecoderTerminatorAtBoundary(t *testing.T) {
	d := NewRequestDecoder()
	d.Feed([]byte("icon\x00"))
	if _, ok, _ := d.Next(); ok {
		t.Fatal("complete after tag only")
	}
	d.Feed([]byte("\x00\x00\x00"))
	if _, ok, _ := d.Next(); ok {
		t.Fatal("complete after three fields")
	}
	d.Feed([]byte("Mate\x00"))
	if _, ok, _ := d.Next(); ok {
		t.Fatal("complete after four fields")
	}
	d.Feed([]byte("\x00"))
	req, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("expected complete request, ok=%v err=%v", ok, err)
	}
	if req.Kind != KindIcon || req.IconTheme != "Mate" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestRequestDecoderUnknownTagKeepsAlignment(t *testing.T) {
	d := NewRequestDecoder()
	d.Feed([]byte("bogus\x00a\x00b\x00c\x00d\x00e\x00"))
	good, _ := MarshalRequest(&Request{Kind: KindWidget, WidgetTheme: "Clearlooks"})
	d.Feed(good)

	_, ok, err := d.Next()
	if !errors.Is(err, ErrUnknownKind) || ok {
		t.Fatalf("expected ErrUnknownKind, ok=%v err=%v", ok, err)
	}
	req, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("expected next request, ok=%v err=%v", ok, err)
	}
	if req.WidgetTheme != "Clearlooks" {
		t.Fatalf("unexpected request %+v", req)
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	return img
}

func decodeResponseChunked(t *testing.T, data []byte, chunk int) *Response {
	t.Helper()
	d := NewResponseDecoder()
	for len(data) > 0 {
		n := chunk
		if n > len(data) {
			n = len(data)
		}
		used, err := d.Feed(data[:n])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		if used != n {
			t.Fatalf("decoder used %d of %d bytes", used, n)
		}
		data = data[n:]
		if d.Done() && len(data) > 0 {
			t.Fatalf("decoder reported done with %d bytes left", len(data))
		}
	}
	if !d.Done() {
		t.Fatal("decoder not done after full frame")
	}
	return d.Response()
}

func TestResponseRoundTripChunking(t *testing.T) {
	img := testImage(12, 9)
	data := MarshalResponse(img)
	if len(data) != headerSize+12*9*4 {
		t.Fatalf("frame length = %d", len(data))
	}

	for _, chunk := range []int{1, 3, 8, 13, len(data)} {
		resp := decodeResponseChunked(t, data, chunk)
		if resp.Width != 12 || resp.Height != 9 {
			t.Fatalf("chunk %d: got %dx%d", chunk, resp.Width, resp.Height)
		}
		if !bytes.Equal(resp.Image().Pix, img.Pix) {
			t.Fatalf("chunk %d: pixels differ", chunk)
		}
	}
}

func TestResponseSentinel(t *testing.T) {
	data := MarshalResponse(nil)
	if len(data) != headerSize {
		t.Fatalf("sentinel frame length = %d, want %d", len(data), headerSize)
	}
	for _, chunk := range []int{1, 8} {
		resp := decodeResponseChunked(t, data, chunk)
		if !resp.Empty() {
			t.Fatalf("expected sentinel, got %dx%d", resp.Width, resp.Height)
		}
		if len(resp.Pixels) != 0 {
			t.Fatalf("sentinel carried %d pixel bytes", len(resp.Pixels))
		}
		if resp.Image() != nil {
			t.Fatal("sentinel must not produce an image")
		}
	}

	empty := image.NewRGBA(image.Rect(0, 0, 0, 5))
	if got := MarshalResponse(empty); !bytes.Equal(got, data) {
		t.Fatalf("zero-width image should encode as sentinel, got %q", got)
	}
}

func TestResponseNegativeDimensionsCompleteImmediately(t *testing.T) {
	frame := make([]byte, headerSize)
	binary.NativeEndian.PutUint32(frame[0:4], 0xffffffff)
	binary.NativeEndian.PutUint32(frame[4:8], 10)
	d := NewResponseDecoder()
	used, err := d.Feed(append(frame, 1, 2, 3))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if used != headerSize || !d.Done() || !d.Response().Empty() {
		t.Fatalf("expected immediate sentinel, used=%d done=%v", used, d.Done())
	}
}

func TestEncodeResponsePaddedStride(t *testing.T) {
	full := testImage(20, 10)
	sub := full.SubImage(image.Rect(4, 2, 10, 7)).(*image.RGBA)
	if sub.Stride == sub.Bounds().Dx()*4 {
		t.Fatal("sub-image should have a padded stride")
	}

	resp := decodeResponseChunked(t, MarshalResponse(sub), 5)
	got := resp.Image()
	if got.Bounds().Dx() != 6 || got.Bounds().Dy() != 5 {
		t.Fatalf("unexpected size %v", got.Bounds())
	}
	for y := 0; y < 5; y++ {
		for x := 0; x < 6; x++ {
			if got.RGBAAt(x, y) != full.RGBAAt(x+4, y+2) {
				t.Fatalf("pixel (%d,%d) mismatch", x, y)
			}
		}
	}
}

func TestResponseDecoderRejectsHugeFrames(t *testing.T) {
	var hdr [headerSize]byte
	binary.NativeEndian.PutUint32(hdr[0:4], MaxDimension+1)
	binary.NativeEndian.PutUint32(hdr[4:8], 1)

	d := NewResponseDecoder()
	if _, err := d.Feed(hdr[:]); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if d.Done() {
		t.Fatal("oversized frame must not complete")
	}
}

func TestDecodeResponseUnexpectedEOF(t *testing.T) {
	data := MarshalResponse(testImage(4, 4))
	_, err := DecodeResponse(bytes.NewReader(data[:len(data)-1]))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF, got %v", err)
	}

	resp, err := DecodeResponse(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if resp.Width != 4 || resp.Height != 4 {
		t.Fatalf("got %dx%d", resp.Width, resp.Height)
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"meta", KindMeta},
		{"gtk", KindWidget},
		{"widget", KindWidget},
		{"marco", KindWindowDecoration},
		{"window-decoration", KindWindowDecoration},
		{"icon", KindIcon},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseKind("cursor"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestDecodeResponseBackToBack(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(MarshalResponse(testImage(2, 2)))
	stream.Write(MarshalResponse(nil))
	stream.Write(MarshalResponse(testImage(3, 1)))
	r := bytes.NewReader(stream.Bytes())

	first, err := DecodeResponse(r)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if first.Width != 2 || first.Height != 2 || len(first.Pixels) != 16 {
		t.Fatalf("first frame = %dx%d with %d bytes", first.Width, first.Height, len(first.Pixels))
	}
	if r.Len() != headerSize+headerSize+3*4 {
		t.Fatalf("first decode consumed too much: %d bytes left", r.Len())
	}

	second, err := DecodeResponse(r)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !second.Empty() {
		t.Fatalf("second frame should be the sentinel, got %dx%d", second.Width, second.Height)
	}

	third, err := DecodeResponse(r)
	if err != nil {
		t.Fatalf("third frame: %v", err)
	}
	if !bytes.Equal(third.Image().Pix, testImage(3, 1).Pix) {
		t.Fatal("third frame pixels differ")
	}

	if _, err := DecodeResponse(r); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF at end of stream, got %v", err)
	}
}

func TestDecodeResponseLargeFrame(t *testing.T) {
	img := testImage(200, 150)
	resp, err := DecodeResponse(bytes.NewReader(MarshalResponse(img)))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if !bytes.Equal(resp.Image().Pix, img.Pix) {
		t.Fatal("pixels differ")
	}
}

func TestResponseDecoderGrowsWithData(t *testing.T) {
	var hdr [headerSize]byte
	binary.NativeEndian.PutUint32(hdr[0:4], MaxDimension)
	binary.NativeEndian.PutUint32(hdr[4:8], MaxDimension)

	d := NewResponseDecoder()
	if _, err := d.Feed(append(hdr[:], 1, 2, 3, 4)); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if d.Done() {
		t.Fatal("frame should be incomplete")
	}
	if c := cap(d.resp.Pixels); c > pixelChunk {
		t.Fatalf("pixel buffer reserved %d bytes before data arrived", c)
	}

	_, err := DecodeResponse(bytes.NewReader(append(hdr[:], 1, 2, 3, 4)))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF for truncated frame, got %v", err)
	}
}
