package imaging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/png"

	ico "github.com/biessek/golang-ico"
)

var errBadICO = errors.New("imaging: invalid ico container")

var (
	icoMagic = []byte("\x00\x00\x01\x00")
	pngMagic = []byte("\x89PNG\r\n\x1a\n")
)

func init() {
	image.RegisterFormat("ico", string(icoMagic), ico.Decode, ico.DecodeConfig)
}

// icoBounds returns the largest width and height claimed by any payload
// of an ICO file. The directory's own width and height bytes are
// ignored: they store sizes modulo 256, and the payload header is what the decoder allocates from.
func icoBounds(data []byte) (w, h int, err error) {
	const headerLen, entryLen = 6, 16
	if len(data) < headerLen {
		return 0, 0, errBadICO
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if count == 0 || len(data) < headerLen+count*entryLen {
		return 0, 0, errBadICO
	}
	for i := range count {
		e := data[headerLen+i*entryLen:]
		size := uint64(binary.LittleEndian.Uint32(e[8:12]))
		off := uint64(binary.LittleEndian.Uint32(e[12:16]))
		if size == 0 || off+size > uint64(len(data)) {
			return 0, 0, errBadICO
		}
		pw, ph, err := payloadBounds(data[off : off+size])
		if err != nil {
			return 0, 0, err
		}
		w, h = max(w, pw), max(h, ph)
	}
	return w, h, nil
}

// payloadBounds reads the dimensions of a PNG or DIB icon payload. DIB
// heights cover the colour bitmap and the AND mask, and are negative
// for top-down bitmaps.
func payloadBounds(p []byte) (int, int, error) {
	if bytes.HasPrefix(p, pngMagic) {
		cfg, err := png.DecodeConfig(bytes.NewReader(p))
		if err != nil {
			return 0, 0, err
		}
		return cfg.Width, cfg.Height, nil
	}
	if len(p) < 40 || binary.LittleEndian.Uint32(p[0:4]) < 40 {
		return 0, 0, errBadICO
	}
	w := int64(int32(binary.LittleEndian.Uint32(p[4:8])))
	h := int64(int32(binary.LittleEndian.Uint32(p[8:12])))
	if w < 0 {
		w = -w
	}
	if h < 0 {
		h = -h
	}
	return int(w), int(h / 2), nil
}
