package process

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Codec turns an uploaded image into its normalized form. Implementations
// must be safe for concurrent use.
type Codec interface {
	// Reencode decodes data, strips embedded metadata, downscales so neither
	// dimension exceeds maxDim, and encodes the result. Returns the encoded
	// bytes and their MIME type.
	Reencode(data []byte, maxDim, quality int) ([]byte, string, error)
}

// JPEGCodec is the default Codec: decode jpeg/png/webp/gif, redraw into a
// fresh buffer (dropping EXIF and every other embedded chunk), downscale
// with CatmullRom when oversized, and encode as JPEG.
type JPEGCodec struct{}

func (JPEGCodec) Reencode(data []byte, maxDim, quality int) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	w, h := targetSize(bounds.Dx(), bounds.Dy(), maxDim)

	// Redrawing into a fresh RGBA is what strips metadata: only pixels
	// survive the copy.
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// targetSize shrinks (w, h) so the larger dimension is at most maxDim,
// preserving aspect ratio. Images already within bounds keep their size.
func targetSize(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, scaleDim(h, w, maxDim)
	}
	return scaleDim(w, h, maxDim), maxDim
}

func scaleDim(side, longSide, maxDim int) int {
	scaled := side * maxDim / longSide
	if scaled < 1 {
		return 1
	}
	return scaled
}
