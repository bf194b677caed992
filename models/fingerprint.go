package models

import "github.com/use-agent/logosim/phash"

// Fingerprint is the perceptual-hash record of one successfully
// processed logo image.
type Fingerprint struct {
	URL    string    `json:"url"`
	Hashes phash.Set `json:"hashes"`

	// Width and Height are the original, pre-normalization dimensions.
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}
