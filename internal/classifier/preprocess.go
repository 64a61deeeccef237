package classifier

import (
	"encoding/binary"
	"image"
	"math"

	"golang.org/x/image/draw"
)

// DefaultInputSize is the square side the leaf models were trained on.
const DefaultInputSize = 128

// Preprocess resizes img to width x height with bilinear sampling and
// returns an NHWC float32 tensor (batch of one, RGB) scaled to [0,1].
func Preprocess(img image.Image, width, height int) []float32 {
	if width <= 0 {
		width = DefaultInputSize
	}
	if height <= 0 {
		height = width
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	tensor := make([]float32, 0, width*height*3)
	for y := 0; y < height; y++ {
		row := dst.Pix[y*dst.Stride:]
		for x := 0; x < width; x++ {
			px := row[x*4:]
			tensor = append(tensor,
				float32(px[0])/255,
				float32(px[1])/255,
				float32(px[2])/255,
			)
		}
	}
	return tensor
}

// EncodeTensor packs a tensor as little-endian float32.
func EncodeTensor(tensor []float32) []byte {
	buf := make([]byte, 4*len(tensor))
	for i, v := range tensor {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeTensor is the inverse of EncodeTensor.
func DecodeTensor(buf []byte) []float32 {
	tensor := make([]float32, len(buf)/4)
	for i := range tensor {
		tensor[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return tensor
}
