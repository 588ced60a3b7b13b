package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/entity-extractor/pkg/types"
)

// ErrNotFound is returned when a local image path does not exist.
var ErrNotFound = errors.New("Image file not found")

// Processor turns local files and URLs into image references for the model
type Processor struct {
	// maxDim > 0 downscales local images whose long side exceeds it before
	// encoding. 0 sends the original bytes untouched.
	maxDim  int
	quality int
}

// NewProcessor creates a processor that sends original bytes
func NewProcessor() *Processor {
	return &Processor{quality: 90}
}

// NewProcessorWithMaxDim creates a processor that downscales large images
func NewProcessorWithMaxDim(maxDim, quality int) *Processor {
	if quality < 1 || quality > 100 {
		quality = 90
	}
	return &Processor{maxDim: maxDim, quality: quality}
}

// CheckExists fails with ErrNotFound when path does not exist.
func (p *Processor) CheckExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	return nil
}

// FileInfo reads dimensions, format, colour mode and size of a local image.
// It never fails: unreadable or unsupported files yield an empty ImageInfo.
func (p *Processor) FileInfo(path string) *types.ImageInfo {
	info := &types.ImageInfo{}

	data, err := os.ReadFile(path)
	if err != nil {
		return info
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info
	}

	mode := colorMode(cfg.ColorModel)
	if format == "webp" {
		// webp configs report a YCbCr model even for images with alpha
		if _, _, hasAlpha, err := webp.GetInfo(data); err == nil {
			mode = "RGB"
			if hasAlpha {
				mode = "RGBA"
			}
		}
	}

	return &types.ImageInfo{
		Width:     cfg.Width,
		Height:    cfg.Height,
		Format:    strings.ToUpper(format),
		Mode:      mode,
		SizeBytes: int64(len(data)),
	}
}

// EncodeFile reads a local image and returns it as a base64 data URI.
func (p *Processor) EncodeFile(path string) (types.ImageRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return types.ImageRef{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return types.ImageRef{}, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := sniffMIME(data)
	if p.maxDim > 0 {
		if resized, mt, ok := p.downscale(data); ok {
			data, mimeType = resized, mt
		}
	}

	return types.ImageRef{
		URL:    "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Inline: true,
	}, nil
}

// URLReference passes a remote URL through unchanged; the model fetches it.
func (p *Processor) URLReference(imageURL string) types.ImageRef {
	return types.ImageRef{URL: imageURL}
}

// downscale re-encodes images larger than maxDim. It reports false when the
// image is already small enough or cannot be decoded, in which case the
// original bytes are sent.
func (p *Processor) downscale(data []byte) ([]byte, string, bool) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", false
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.maxDim && h <= p.maxDim {
		return nil, "", false
	}
	if w >= h {
		img = imaging.Resize(img, p.maxDim, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, p.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if hasAlpha(img) {
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", false
		}
		return buf.Bytes(), "image/png", true
	}
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, "", false
	}
	return buf.Bytes(), "image/jpeg", true
}

// sniffMIME picks the data URI media type from the file signature,
// falling back to image/jpeg.
func sniffMIME(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "image/jpeg"
	}
	switch format {
	case "jpeg", "png", "gif", "webp", "bmp", "tiff":
		return "image/" + format
	default:
		return "image/jpeg"
	}
}

// colorMode names a colour model using the usual single-token mode labels
func colorMode(m color.Model) string {
	switch m {
	case color.GrayModel:
		return "L"
	case color.Gray16Model:
		return "I;16"
	case color.CMYKModel:
		return "CMYK"
	case color.YCbCrModel:
		return "RGB"
	case color.RGBAModel, color.RGBA64Model:
		// decoders use the premultiplied models for opaque truecolor data
		return "RGB"
	case color.NRGBAModel, color.NRGBA64Model:
		return "RGBA"
	case color.AlphaModel, color.Alpha16Model:
		return "A"
	}
	if _, ok := m.(color.Palette); ok {
		return "P"
	}
	return ""
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return true
}
