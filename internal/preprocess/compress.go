// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package preprocess

import (
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

const (
	// DefaultQuality is the first JPEG quality tried.
	DefaultQuality = 85

	// DefaultMaxDimension caps the longer image side.
	DefaultMaxDimension = 2000

	qualityStep  = 10
	qualityFloor = 20
)

// ErrTooLarge is returned when no quality above the floor brings a file
// under the size limit.
var ErrTooLarge = eris.New("compressed file still exceeds size limit")

// Compressor re-encodes the image at in as a smaller file at out.
type Compressor interface {
	Compress(in, out string, quality int) error
}

// JPEGCompressor decodes JPEG, PNG, BMP, and TIFF images, shrinks them to
// fit MaxDimension, flattens transparency onto white, and writes JPEG.
type JPEGCompressor struct {
	MaxDimension int
}

// Compress implements Compressor.
func (c JPEGCompressor) Compress(in, out string, quality int) error {
	f, err := os.Open(in)
	if err != nil {
		return eris.Wrapf(err, "open %s", in)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return eris.Wrapf(err, "decode %s", in)
	}

	maxDim := c.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxDim)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return eris.Wrapf(err, "create %s", filepath.Dir(out))
	}
	o, err := os.Create(out)
	if err != nil {
		return eris.Wrapf(err, "create %s", out)
	}
	if err := jpeg.Encode(o, dst, &jpeg.Options{Quality: quality}); err != nil {
		o.Close()
		return eris.Wrapf(err, "encode %s", out)
	}
	return o.Close()
}

// fitWithin scales w×h down so neither side exceeds limit, keeping the
// aspect ratio. Images already within bounds are unchanged.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

// CompressToFit compresses in to out, lowering quality by 10 from start
// while the result exceeds limit. It gives up once quality would reach the
// floor of 20, removing the oversize output. It returns the quality used.
func CompressToFit(c Compressor, in, out string, limit int64, start int) (int, error) {
	if start <= 0 || start > 100 {
		start = DefaultQuality
	}
	for q := start; q > qualityFloor; q -= qualityStep {
		if err := c.Compress(in, out, q); err != nil {
			return q, err
		}
		info, err := os.Stat(out)
		if err != nil {
			return q, eris.Wrapf(err, "stat %s", out)
		}
		if info.Size() <= limit {
			return q, nil
		}
	}
	os.Remove(out)
	return qualityFloor, ErrTooLarge
}
