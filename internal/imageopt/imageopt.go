// Package imageopt re-encodes images to shrink them. The optimized bytes
// are used only when they are smaller than the original.
package imageopt

import (
	"bytes"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/svg"

	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Options are the optimizer settings. They are part of the change-detection
// fingerprint, so every field must be serializable.
//
// Progressive and Interlaced only feed the fingerprint. The standard library
// encoders write baseline JPEGs and non-interlaced PNGs and GIFs, so toggling
// either one forces a rebuild but leaves the encoded bytes unchanged.
type Options struct {
	Level       int  `json:"level"` // 0-7
	Progressive bool `json:"progressive"`
	Interlaced  bool `json:"interlaced"`
	JPEGQuality int  `json:"jpeg_quality"` // 0 keeps JPEGs untouched
}

// Optimizer is safe for concurrent use.
type Optimizer struct {
	opts     Options
	minifier *minify.M
}

func New(opts Options) *Optimizer {
	m := minify.New()
	m.Add("image/svg+xml", &svg.Minifier{KeepComments: false})
	return &Optimizer{opts: opts, minifier: m}
}

// Options returns the settings the optimizer was created with.
func (o *Optimizer) Options() Options { return o.opts }

// Optimize returns the optimized bytes for a file named name and whether
// they differ from data. Unknown extensions pass through.
func (o *Optimizer) Optimize(name string, data []byte) ([]byte, bool, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		out, err = o.png(data)
	case ".gif":
		out, err = o.gif(data)
	case ".jpg", ".jpeg":
		out, err = o.jpeg(data)
	case ".svg":
		out, err = o.svg(data)
	default:
		return data, false, nil
	}
	if err != nil {
		return nil, false, ferrors.WrapError(err, ferrors.CategoryBuild, "optimize image").
			WithContext("path", name).UserAction().Build()
	}
	if out == nil || len(out) >= len(data) {
		return data, false, nil
	}
	return out, true, nil
}

func (o *Optimizer) compressionLevel() png.CompressionLevel {
	switch {
	case o.opts.Level <= 0:
		return png.NoCompression
	case o.opts.Level <= 2:
		return png.BestSpeed
	case o.opts.Level <= 4:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}

func (o *Optimizer) png(data []byte) ([]byte, error) {
	if o.opts.Level <= 0 {
		return nil, nil
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: o.compressionLevel()}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) gif(data []byte) ([]byte, error) {
	if o.opts.Level <= 0 {
		return nil, nil
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) jpeg(data []byte) ([]byte, error) {
	if o.opts.JPEGQuality <= 0 {
		return nil, nil
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: o.opts.JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Optimizer) svg(data []byte) ([]byte, error) {
	return o.minifier.Bytes("image/svg+xml", data)
}
