// Package imaging prepares region crops for the model providers: cut the
// question's bounding box out of the page raster, scale it to the payload
// budget, and encode it as JPEG.
package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"

	xdraw "golang.org/x/image/draw"

	"github.com/paperscore/paperscore/internal/structure"
)

// Options controls crop output.
type Options struct {
	// MaxDimension caps the longer edge of the encoded crop. Larger
	// crops are scaled down; smaller ones pass through untouched.
	MaxDimension int
	// JPEGQuality in [1,100].
	JPEGQuality int
	// PaddingPx grows the box on every side before cropping, so answers
	// running slightly past the detected bounds are not cut off.
	PaddingPx int
}

// DefaultOptions returns the production crop settings.
func DefaultOptions() Options {
	return Options{
		MaxDimension: 1536,
		JPEGQuality:  85,
		PaddingPx:    12,
	}
}

// ErrNoRaster is returned when the page carries no decoded raster.
var ErrNoRaster = errors.New("page has no raster image")

// RegionJPEG cuts the region box out of the page raster and returns it as
// a JPEG sized to the payload budget.
func RegionJPEG(page structure.Page, box structure.Box, opts Options) ([]byte, error) {
	if page.Raster == nil {
		return nil, ErrNoRaster
	}
	if opts.MaxDimension <= 0 {
		opts = DefaultOptions()
	}

	bounds := page.Raster.Bounds()
	rect := image.Rect(
		int(box.X)-opts.PaddingPx,
		int(box.Y)-opts.PaddingPx,
		int(box.Right())+opts.PaddingPx,
		int(box.Bottom())+opts.PaddingPx,
	).Intersect(bounds)
	if rect.Empty() {
		return nil, errors.New("region box lies outside the page raster")
	}

	crop := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Draw(crop, crop.Bounds(), page.Raster, rect.Min, xdraw.Src)

	scaled := scaleToBudget(crop, opts.MaxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: opts.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func scaleToBudget(img *image.RGBA, maxDim int) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	longer := w
	if h > longer {
		longer = h
	}
	if longer <= maxDim {
		return img
	}

	factor := float64(maxDim) / float64(longer)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*factor), int(float64(h)*factor)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	return dst
}
