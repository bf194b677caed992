package phash

import (
	"errors"
	"image"
	"sort"

	"golang.org/x/image/draw"
)

const (
	waveletSide  = 8
	waveletScale = 64
)

// WaveletHash computes a 64-bit hash from the low-frequency band of a
// Haar wavelet decomposition. The image is reduced to a 64x64 grayscale
// plane, decomposed three times down to an 8x8 approximation, and each
// coefficient is compared against the band median.
func WaveletHash(img image.Image) (Code, error) {
	if img == nil {
		return nil, errors.New("phash: nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("phash: empty image")
	}

	gray := image.NewGray(image.Rect(0, 0, waveletScale, waveletScale))
	draw.CatmullRom.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)

	plane := make([]float64, waveletScale*waveletScale)
	for y := 0; y < waveletScale; y++ {
		for x := 0; x < waveletScale; x++ {
			plane[y*waveletScale+x] = float64(gray.GrayAt(x, y).Y) / 255
		}
	}

	for n := waveletScale; n > waveletSide; n /= 2 {
		haarStep(plane, waveletScale, n)
	}

	ll := make([]float64, 0, waveletSide*waveletSide)
	for y := 0; y < waveletSide; y++ {
		ll = append(ll, plane[y*waveletScale:y*waveletScale+waveletSide]...)
	}
	med := median(ll)

	code := make(Code, waveletSide*waveletSide/8)
	for i, v := range ll {
		if v > med {
			code[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return code, nil
}

// haarStep applies one 2-D Haar level to the top-left n x n block of a
// stride-wide plane, leaving the approximation in the top-left n/2 block.
func haarStep(plane []float64, stride, n int) {
	half := n / 2
	tmp := make([]float64, n)

	for y := 0; y < n; y++ {
		row := plane[y*stride : y*stride+n]
		for i := 0; i < half; i++ {
			a, b := row[2*i], row[2*i+1]
			tmp[i] = (a + b) / 2
			tmp[half+i] = (a - b) / 2
		}
		copy(row, tmp)
	}
	for x := 0; x < n; x++ {
		for i := 0; i < half; i++ {
			a, b := plane[(2*i)*stride+x], plane[(2*i+1)*stride+x]
			tmp[i] = (a + b) / 2
			tmp[half+i] = (a - b) / 2
		}
		for y := 0; y < n; y++ {
			plane[y*stride+x] = tmp[y]
		}
	}
}

func median(vals []float64) float64 {
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 0 {
		return (s[m-1] + s[m]) / 2
	}
	return s[m]
}
