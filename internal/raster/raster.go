// Package raster converts color images into the packed monochrome format
// consumed by the thermal printer.
//
// The conversion is a pure, deterministic pipeline: resample to the printer's
// fixed 384-pixel width, reduce to luminance, dither to one bit with
// Floyd-Steinberg error diffusion, and pack eight pixels per byte.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"math"

	// Register the decoders for the formats the illustration provider and the
	// developer tooling produce.
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

const (
	// WidthBytes is the number of bytes per raster row. The printer head is
	// 384 dots wide, packed eight dots per byte.
	WidthBytes = 48

	// WidthPixels is the fixed pixel width of every raster.
	WidthPixels = WidthBytes * 8

	// luminanceMax is the upper bound of the working grayscale range.
	luminanceMax = 255.0

	// threshold is the midpoint of the luminance range used by the one-bit
	// quantizer.
	threshold = luminanceMax / 2
)

// ErrInvalidImage indicates that the source image could not be decoded or has
// a zero dimension.
var ErrInvalidImage = errors.New("invalid source image")

// PrinterRaster is the packed one-bit output of Rasterize.
//
// Data holds HeightPixels rows of WidthBytes bytes each, top to bottom, with
// no padding between rows. Within a byte, bit 0 is the leftmost of its eight
// pixels. Polarity is inverted for the printer: a set bit is white (no ink),
// a clear bit is black (fire the dot). An all-white page is all 0xFF bytes.
type PrinterRaster struct {
	HeightPixels int
	Data         []byte
}

// Size returns the total byte length of the packed raster.
func (r *PrinterRaster) Size() int {
	return len(r.Data)
}

// Rasterize converts one source image into a PrinterRaster.
//
// The source is resized to exactly WidthPixels wide with a Lanczos filter.
// The target height preserves the aspect ratio and is clamped to a minimum of
// one row, so extreme aspect ratios never produce an empty raster. The
// function holds no state and is safe to call concurrently for independent
// images.
func Rasterize(img image.Image) (*PrinterRaster, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidImage)
	}

	bounds := img.Bounds()

	sourceWidth := bounds.Dx()
	sourceHeight := bounds.Dy()

	if sourceWidth <= 0 || sourceHeight <= 0 {
		return nil, fmt.Errorf(
			"%w: zero-area image (%dx%d)",
			ErrInvalidImage,
			sourceWidth,
			sourceHeight,
		)
	}

	height := targetHeight(sourceWidth, sourceHeight)

	resized := resize.Resize(WidthPixels, uint(height), img, resize.Lanczos3)

	gray := toLuminance(resized, WidthPixels, height)

	ink := ditherFloydSteinberg(gray, WidthPixels, height)

	return &PrinterRaster{
		HeightPixels: height,
		Data:         pack(ink, height),
	}, nil
}

// RasterizeBytes decodes an encoded image (PNG, JPEG) and rasterizes it.
func RasterizeBytes(data []byte) (*PrinterRaster, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode failed: %v", ErrInvalidImage, err)
	}

	return Rasterize(img)
}

// targetHeight scales the source height by WidthPixels/sourceWidth. The
// scaled height is truncated, not rounded: a 685x913 source maps to 511 rows,
// which is what the printer fixtures were captured against.
func targetHeight(sourceWidth, sourceHeight int) int {
	scaled := int(math.Floor(float64(sourceHeight) * WidthPixels / float64(sourceWidth)))
	if scaled < 1 {
		return 1
	}

	return scaled
}

// toLuminance flattens the resized image into a row-major float64 buffer in
// the range [0, 255] using Rec. 601 weights. The weights are positive in each
// channel, so pure white maps to 255 and pure black to 0.
func toLuminance(img image.Image, width, height int) []float64 {
	gray := make([]float64, width*height)

	minPoint := img.Bounds().Min

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(minPoint.X+x, minPoint.Y+y).RGBA()

			// Channel values are 16-bit; scale back to the 8-bit range.
			gray[y*width+x] = (0.299*float64(r) +
				0.587*float64(g) +
				0.114*float64(b)) / 257.0
		}
	}

	return gray
}

// ditherFloydSteinberg quantizes the luminance buffer to one bit per pixel in
// raster order, diffusing the quantization error with the classical kernel:
// 7/16 right, 3/16 below-left, 5/16 below, 1/16 below-right. Contributions
// that fall outside the image are dropped. The returned slice is true where
// the pixel prints (ink).
func ditherFloydSteinberg(gray []float64, width, height int) []bool {
	ink := make([]bool, width*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			index := y*width + x
			old := gray[index]

			emitted := luminanceMax
			if old < threshold {
				emitted = 0
				ink[index] = true
			}

			quantErr := old - emitted

			if x+1 < width {
				gray[index+1] += quantErr * 7 / 16
			}

			if y+1 < height {
				below := index + width
				if x-1 >= 0 {
					gray[below-1] += quantErr * 3 / 16
				}

				gray[below] += quantErr * 5 / 16

				if x+1 < width {
					gray[below+1] += quantErr * 1 / 16
				}
			}
		}
	}

	return ink
}

// pack groups each row of 384 pixels into 48 bytes, least-significant bit
// first, with polarity inverted so the printer sees 0 as "fire this dot".
func pack(ink []bool, height int) []byte {
	data := make([]byte, WidthBytes*height)

	for y := 0; y < height; y++ {
		row := y * WidthBytes

		for byteIndex := 0; byteIndex < WidthBytes; byteIndex++ {
			var packed byte

			for bit := 0; bit < 8; bit++ {
				x := byteIndex*8 + bit
				if !ink[y*WidthPixels+x] {
					packed |= 1 << bit
				}
			}

			data[row+byteIndex] = packed
		}
	}

	return data
}
