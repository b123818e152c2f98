package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"

	"studyhub/internal/services"
)

// Options tune the whiteboard enhancement pass.
type Options struct {
	// LowPercentile and HighPercentile bound the contrast stretch (0-1).
	LowPercentile  float64
	HighPercentile float64
	// Sharpen is the unsharp-mask amount; 0 disables sharpening.
	Sharpen float64
	// MaxPixels caps width*height as declared in the image header.
	// Zero means DefaultMaxPixels.
	MaxPixels int
}

// DefaultMaxPixels admits a 40 megapixel photo.
const DefaultMaxPixels = 40_000_000

// DefaultOptions returns the settings used for whiteboard photos.
func DefaultOptions() Options {
	return Options{LowPercentile: 0.02, HighPercentile: 0.98, Sharpen: 0.6, MaxPixels: DefaultMaxPixels}
}

// Enhance decodes a JPEG or PNG photo, converts it to grayscale, stretches
// its contrast between the configured percentiles, sharpens it, and returns
// PNG bytes.
func Enhance(data []byte, opts Options) ([]byte, error) {
	if err := checkDimensions(data, opts.MaxPixels); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, services.Wrap(services.ErrAdapterRejected, "enhance", "decode", "unreadable image", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, services.Wrap(services.ErrAdapterRejected, "enhance", "decode", "empty image", nil)
	}

	gray := toGray(src)
	stretch(gray, opts.LowPercentile, opts.HighPercentile)
	if opts.Sharpen > 0 {
		gray = sharpen(gray, opts.Sharpen)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("enhance: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// checkDimensions reads only the image header so oversized images are
// refused before any pixel buffer is allocated.
func checkDimensions(data []byte, maxPixels int) error {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return services.Wrap(services.ErrAdapterRejected, "enhance", "decode", "unreadable image", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return services.Wrap(services.ErrAdapterRejected, "enhance", "decode", "empty image", nil)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return services.Wrap(services.ErrAdapterRejected, "enhance", "decode",
			fmt.Sprintf("image is %dx%d, above the %d pixel limit", cfg.Width, cfg.Height, maxPixels), nil)
	}
	return nil
}

func toGray(src image.Image) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			dst.SetGray(x-bounds.Min.X, y-bounds.Min.Y, color.GrayModel.Convert(src.At(x, y)).(color.Gray))
		}
	}
	return dst
}

// stretch remaps intensities so the low percentile becomes black and the
// high percentile becomes white.
func stretch(img *image.Gray, lowPct, highPct float64) {
	if lowPct < 0 || lowPct >= 1 {
		lowPct = 0
	}
	if highPct <= lowPct || highPct > 1 {
		highPct = 1
	}
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}
	total := len(img.Pix)
	low := percentile(hist, total, lowPct)
	high := percentile(hist, total, highPct)
	if high <= low {
		return
	}
	var lut [256]uint8
	span := float64(high - low)
	for i := range lut {
		switch {
		case i <= int(low):
			lut[i] = 0
		case i >= int(high):
			lut[i] = 255
		default:
			lut[i] = uint8(float64(i-int(low))*255/span + 0.5)
		}
	}
	for i, v := range img.Pix {
		img.Pix[i] = lut[v]
	}
}

func percentile(hist [256]int, total int, pct float64) uint8 {
	target := int(float64(total) * pct)
	seen := 0
	for i, count := range hist {
		seen += count
		if seen > target {
			return uint8(i)
		}
	}
	return 255
}

// sharpen applies an unsharp mask using a 3x3 box blur.
func sharpen(img *image.Gray, amount float64) *image.Gray {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := image.NewGray(img.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum, n := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					sum += int(img.Pix[ny*img.Stride+nx])
					n++
				}
			}
			orig := float64(img.Pix[y*img.Stride+x])
			blur := float64(sum) / float64(n)
			out.Pix[y*out.Stride+x] = clamp(orig + amount*(orig-blur))
		}
	}
	return out
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
