package analysis

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // menu photos arrive as PNG or JPEG
)

// compressIfLarge re-encodes images above the configured threshold as JPEG
// at reduced quality, trading transfer size for upload speed while keeping
// the text legible for OCR. Any failure, or a re-encode that grew the
// payload, falls back to the original bytes.
func (c *Coordinator) compressIfLarge(data []byte) []byte {
	if c.opts.CompressThreshold <= 0 || int64(len(data)) <= c.opts.CompressThreshold {
		return data
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		c.logger.Warn("image decode failed, sending uncompressed", "error", err)
		return data
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.opts.JPEGQuality}); err != nil {
		c.logger.Warn("image re-encode failed, sending uncompressed", "error", err)
		return data
	}

	if buf.Len() >= len(data) {
		return data
	}

	c.logger.Debug("image compressed",
		"format", format,
		"originalBytes", len(data),
		"compressedBytes", buf.Len())
	return buf.Bytes()
}
