// rawview converts packed printer rasters to viewable PNGs and back.
//
// The default mode reads a row-major packed .bin (LSB-first bits, set bit =
// white) and writes a PNG. The -reduce mode goes the other way: it thresholds
// a source image into the same packed layout for producing printer fixtures.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"strings"

	_ "image/jpeg"

	"github.com/nfnt/resize"
)

// Flag descriptions.
const (
	flagOutDesc        = "Output file path (defaults next to the input)"
	flagWidthBytesDesc = "Packed bytes per row"
	flagInvertDesc     = "Invert bits when converting"
	flagReduceDesc     = "Reduce a source image to a packed .bin instead of visualizing"
	flagRowsDesc       = "Explicit row count for -reduce (default keeps the aspect ratio)"
)

// Flag names.
const (
	flagOut        = "out"
	flagWidthBytes = "width-bytes"
	flagInvert     = "invert"
	flagReduce     = "reduce"
	flagRows       = "rows"
)

const (
	defaultWidthBytes = 48
	bitsPerByte       = 8
	whiteLevel        = 255
	reduceThreshold   = 128.0
)

// Static errors.
var (
	errNoInput          = errors.New("exactly one input file is required")
	errWidthBytes       = errors.New("width-bytes must be positive")
	errRaggedInput      = errors.New("input length is not a multiple of width-bytes")
	errEmptySourceImage = errors.New("source image has a zero dimension")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	input      string
	out        string
	widthBytes int
	invert     bool
	reduce     bool
	rows       int
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags, err := parseFlags()
	if err != nil {
		return err
	}

	if flags.reduce {
		return runReduce(flags)
	}

	return runVisualize(flags)
}

// parseFlags defines and parses command-line flags, returning them in a
// struct.
func parseFlags() (appFlags, error) {
	var flags appFlags

	flag.StringVar(&flags.out, flagOut, "", flagOutDesc)
	flag.IntVar(&flags.widthBytes, flagWidthBytes, defaultWidthBytes, flagWidthBytesDesc)
	flag.BoolVar(&flags.invert, flagInvert, false, flagInvertDesc)
	flag.BoolVar(&flags.reduce, flagReduce, false, flagReduceDesc)
	flag.IntVar(&flags.rows, flagRows, 0, flagRowsDesc)
	flag.Parse()

	if flag.NArg() != 1 {
		return appFlags{}, errNoInput
	}

	if flags.widthBytes <= 0 {
		return appFlags{}, errWidthBytes
	}

	flags.input = flag.Arg(0)

	return flags, nil
}

func runVisualize(flags appFlags) error {
	data, err := os.ReadFile(flags.input)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	img, err := unpackToImage(data, flags.widthBytes, flags.invert)
	if err != nil {
		return err
	}

	outPath := flags.out
	if outPath == "" {
		outPath = trimExt(flags.input) + ".visualized.png"
	}

	err = writePNG(outPath, img)
	if err != nil {
		return err
	}

	bounds := img.Bounds()
	fmt.Printf("Saved visualization: %s (w=%d h=%d)\n", outPath, bounds.Dx(), bounds.Dy())

	return nil
}

func runReduce(flags appFlags) error {
	file, err := os.Open(flags.input)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return fmt.Errorf("failed to decode input image: %w", err)
	}

	raw, err := reduceToRaw(img, flags.widthBytes, flags.rows, flags.invert)
	if err != nil {
		return err
	}

	outPath := flags.out
	if outPath == "" {
		outPath = trimExt(flags.input) + "_reduced.bin"
	}

	err = os.WriteFile(outPath, raw, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Saved raw bin: %s (%d bytes, %d rows)\n",
		outPath, len(raw), len(raw)/flags.widthBytes)

	return nil
}

// unpackToImage expands packed rows into a grayscale image. Bits are
// LSB-first within each byte; a set bit is white unless invert is given.
func unpackToImage(data []byte, widthBytes int, invert bool) (*image.Gray, error) {
	if len(data) == 0 || len(data)%widthBytes != 0 {
		return nil, fmt.Errorf("%w: %d bytes, %d per row", errRaggedInput, len(data), widthBytes)
	}

	width := widthBytes * bitsPerByte
	height := len(data) / widthBytes
	img := image.NewGray(image.Rect(0, 0, width, height))

	for y := 0; y < height; y++ {
		row := data[y*widthBytes : (y+1)*widthBytes]

		for byteIndex := 0; byteIndex < widthBytes; byteIndex++ {
			packed := row[byteIndex]

			for bit := 0; bit < bitsPerByte; bit++ {
				white := (packed>>bit)&1 == 1
				if invert {
					white = !white
				}

				var level uint8
				if white {
					level = whiteLevel
				}

				img.SetGray(byteIndex*bitsPerByte+bit, y, color.Gray{Y: level})
			}
		}
	}

	return img, nil
}

// reduceToRaw thresholds a source image into the packed row format. rows
// zero derives the height from the source aspect ratio.
func reduceToRaw(img image.Image, widthBytes, rows int, invert bool) ([]byte, error) {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth == 0 || srcHeight == 0 {
		return nil, errEmptySourceImage
	}

	width := widthBytes * bitsPerByte

	if rows <= 0 {
		rows = int(math.Floor(float64(srcHeight) * float64(width) / float64(srcWidth)))
		if rows < 1 {
			rows = 1
		}
	}

	scaled := resize.Resize(uint(width), uint(rows), img, resize.Lanczos3)
	raw := make([]byte, widthBytes*rows)

	for y := 0; y < rows; y++ {
		for byteIndex := 0; byteIndex < widthBytes; byteIndex++ {
			var packed byte

			for bit := 0; bit < bitsPerByte; bit++ {
				r, g, b, _ := scaled.At(byteIndex*bitsPerByte+bit, y).RGBA()
				luminance := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 257.0

				white := luminance > reduceThreshold
				if invert {
					white = !white
				}

				if white {
					packed |= 1 << bit
				}
			}

			raw[y*widthBytes+byteIndex] = packed
		}
	}

	return raw, nil
}

func trimExt(path string) string {
	dot := strings.LastIndex(path, ".")
	if dot <= 0 {
		return path
	}

	return path[:dot]
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer file.Close()

	err = png.Encode(file, img)
	if err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}

	return nil
}
