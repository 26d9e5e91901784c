package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnpackToImageBitOrder(t *testing.T) {
	t.Parallel()

	// One row, two bytes. 0x01 sets only the lowest bit, which is the
	// leftmost pixel of its byte.
	data := []byte{0x01, 0xFF}

	img, err := unpackToImage(data, 2, false)
	require.NoError(t, err)

	bounds := img.Bounds()
	require.Equal(t, 16, bounds.Dx())
	require.Equal(t, 1, bounds.Dy())

	assert.Equal(t, uint8(255), img.GrayAt(0, 0).Y)

	for x := 1; x < 8; x++ {
		assert.Equal(t, uint8(0), img.GrayAt(x, 0).Y, "bit %d of 0x01 should be black", x)
	}

	for x := 8; x < 16; x++ {
		assert.Equal(t, uint8(255), img.GrayAt(x, 0).Y, "bit %d of 0xFF should be white", x)
	}
}

func TestUnpackToImageInvert(t *testing.T) {
	t.Parallel()

	img, err := unpackToImage([]byte{0x00}, 1, true)
	require.NoError(t, err)

	for x := 0; x < 8; x++ {
		assert.Equal(t, uint8(255), img.GrayAt(x, 0).Y)
	}
}

func TestUnpackToImageRaggedInput(t *testing.T) {
	t.Parallel()

	_, err := unpackToImage([]byte{0x00, 0x01, 0x02}, 2, false)
	require.ErrorIs(t, err, errRaggedInput)

	_, err = unpackToImage(nil, 48, false)
	require.ErrorIs(t, err, errRaggedInput)
}

func TestReduceRoundTrip(t *testing.T) {
	t.Parallel()

	// An alternating-rows pattern survives unpack -> reduce exactly
	// because the reduction resamples to the same dimensions.
	raw := make([]byte, 4*6)
	for row := 0; row < 6; row++ {
		for i := 0; i < 4; i++ {
			if row%2 == 0 {
				raw[row*4+i] = 0xFF
			}
		}
	}

	img, err := unpackToImage(raw, 4, false)
	require.NoError(t, err)

	packed, err := reduceToRaw(img, 4, 6, false)
	require.NoError(t, err)

	assert.Equal(t, raw, packed)
}

func TestReduceDerivesRowsFromAspect(t *testing.T) {
	t.Parallel()

	img, err := unpackToImage(make([]byte, 48*100), 48, false)
	require.NoError(t, err)

	// 384 wide, 100 tall reduced at 24 width-bytes (192 px) keeps the
	// aspect ratio: 50 rows.
	raw, err := reduceToRaw(img, 24, 0, false)
	require.NoError(t, err)
	assert.Len(t, raw, 24*50)
}

func TestReduceInvert(t *testing.T) {
	t.Parallel()

	img, err := unpackToImage(make([]byte, 8), 8, false)
	require.NoError(t, err)

	packed, err := reduceToRaw(img, 8, 1, true)
	require.NoError(t, err)

	for _, b := range packed {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestTrimExt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fixture", trimExt("fixture.bin"))
	assert.Equal(t, "dir/fixture", trimExt("dir/fixture.bin"))
	assert.Equal(t, "plain", trimExt("plain"))
}
