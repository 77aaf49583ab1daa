package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMinQuality   = 10
	DefaultQualityStep  = 5
	DefaultStartQuality = 85

	// maxPixels bounds the decoded canvas (about 200 MB of RGBA).
	maxPixels = 50_000_000
)

var (
	ErrDecode         = errors.New("not a decodable image")
	ErrInvalidOptions = errors.New("invalid compression options")
)

type Options struct {
	MaxBytes     int
	MinQuality   int
	QualityStep  int
	StartQuality int
}

// DefaultOptions returns the standard quality ladder (85 down to 10 in steps of 5)
// for the given size ceiling.
func DefaultOptions(maxBytes int) Options {
	return Options{
		MaxBytes:     maxBytes,
		MinQuality:   DefaultMinQuality,
		QualityStep:  DefaultQualityStep,
		StartQuality: DefaultStartQuality,
	}
}

func (o Options) validate() error {
	switch {
	case o.MaxBytes <= 0:
		return fmt.Errorf("%w: max bytes must be positive, got %d", ErrInvalidOptions, o.MaxBytes)
	case o.QualityStep <= 0:
		return fmt.Errorf("%w: quality step must be positive, got %d", ErrInvalidOptions, o.QualityStep)
	case o.MinQuality < 1 || o.StartQuality > 100:
		return fmt.Errorf("%w: qualities must lie in 1..100", ErrInvalidOptions)
	case o.MinQuality > o.StartQuality:
		return fmt.Errorf("%w: min quality %d above start quality %d", ErrInvalidOptions, o.MinQuality, o.StartQuality)
	}
	return nil
}

// MaxPasses is the upper bound on encode passes Compress performs for o.
func (o Options) MaxPasses() int {
	span := o.StartQuality - o.MinQuality
	return (span+o.QualityStep-1)/o.QualityStep + 1
}

type Result struct {
	Data    []byte
	Quality int
	Passes  int
}

// Oversize reports whether the floor quality still could not meet the ceiling.
func (r Result) Oversize(maxBytes int) bool {
	return len(r.Data) > maxBytes
}

// Compress decodes raw and re-encodes it as an RGB JPEG, lowering the quality
// until the output fits opts.MaxBytes or the quality reaches opts.MinQuality.
// Hitting the floor is not an error: the floor-quality bytes are returned.
func Compress(raw []byte, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}

	img, err := decode(raw)
	if err != nil {
		return Result{}, err
	}
	rgb := flatten(img)

	var buf bytes.Buffer
	quality := opts.StartQuality
	passes := 0
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: quality}); err != nil {
			return Result{}, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
		}
		passes++

		if buf.Len() <= opts.MaxBytes || quality <= opts.MinQuality {
			break
		}
		quality -= opts.QualityStep
		if quality < opts.MinQuality {
			quality = opts.MinQuality
		}
	}

	return Result{
		Data:    append([]byte(nil), buf.Bytes()...),
		Quality: quality,
		Passes:  passes,
	}, nil
}

// Check fully decodes raw and reports ErrDecode when it is not a usable image.
// A valid header is not enough: truncated pixel data fails here too.
func Check(raw []byte) error {
	_, err := decode(raw)
	return err
}

func decode(raw []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: %s canvas %dx%d out of bounds", ErrDecode, format, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// flatten composites img over opaque white so the encoder always sees three
// colour channels, whatever the source mode (gray, paletted, alpha).
func flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
