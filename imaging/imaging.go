// Package imaging decodes downloaded logo bytes and normalizes them into
// the canonical square RGBA form the hashes are computed on.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var (
	// ErrEmpty is returned for a zero-length body.
	ErrEmpty = errors.New("imaging: empty body")
	// ErrVector is returned for SVG documents, which are not rasterized.
	ErrVector = errors.New("imaging: vector images are not supported")
	// ErrTooSmall is returned by Validate for undersized images.
	ErrTooSmall = errors.New("imaging: image below minimum size")
	// ErrTooLarge is returned by Decode when the header claims more
	// pixels than allowed.
	ErrTooLarge = errors.New("imaging: image dimensions exceed limit")
)

// Decode parses raw bytes into an image and reports the detected format.
// The header is checked against maxPixels before any pixel data is
// decoded.
func Decode(data []byte, maxPixels int64) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmpty
	}
	if looksLikeSVG(data) {
		return nil, "svg", ErrVector
	}
	if err := checkBounds(data, maxPixels); err != nil {
		return nil, "", err
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

func checkBounds(data []byte, maxPixels int64) error {
	var w, h int
	if bytes.HasPrefix(data, icoMagic) {
		var err error
		if w, h, err = icoBounds(data); err != nil {
			return fmt.Errorf("imaging: decode header: %w", err)
		}
	} else {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("imaging: decode header: %w", err)
		}
		w, h = cfg.Width, cfg.Height
	}
	if w <= 0 || h <= 0 {
		return fmt.Errorf("imaging: decode header: bad dimensions %dx%d", w, h)
	}
	if int64(w) > maxPixels/int64(h) {
		return fmt.Errorf("%w: %dx%d > %d pixels", ErrTooLarge, w, h, maxPixels)
	}
	return nil
}

// Validate rejects images whose width or height is below min pixels.
func Validate(img image.Image, min int) error {
	b := img.Bounds()
	if b.Dx() < min || b.Dy() < min {
		return fmt.Errorf("%w: %dx%d < %d", ErrTooSmall, b.Dx(), b.Dy(), min)
	}
	return nil
}

// Normalize flattens transparency onto white and resamples the image to
// a size x size RGBA canvas with a Catmull-Rom filter.
func Normalize(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}
