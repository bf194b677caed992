// Package phash computes the four perceptual hashes used to fingerprint
// logo images and compares them by Hamming distance.
package phash

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// CodeBits is the length of every code produced by Compute.
const CodeBits = 64

// Set holds the four independent hashes of one image.
type Set struct {
	// Primary is the DCT-based perceptual hash. Clustering uses it.
	Primary    Code `json:"phash"`
	Difference Code `json:"dhash"`
	Average    Code `json:"ahash"`
	Wavelet    Code `json:"whash"`
}

// Compute hashes a normalized image with all four strategies.
func Compute(img image.Image) (Set, error) {
	var s Set

	p, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return s, fmt.Errorf("phash: perception hash: %w", err)
	}
	d, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return s, fmt.Errorf("phash: difference hash: %w", err)
	}
	a, err := goimagehash.AverageHash(img)
	if err != nil {
		return s, fmt.Errorf("phash: average hash: %w", err)
	}
	w, err := WaveletHash(img)
	if err != nil {
		return s, fmt.Errorf("phash: wavelet hash: %w", err)
	}

	s.Primary = FromUint64(p.GetHash())
	s.Difference = FromUint64(d.GetHash())
	s.Average = FromUint64(a.GetHash())
	s.Wavelet = w
	return s, nil
}
