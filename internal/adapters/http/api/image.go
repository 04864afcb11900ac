package api

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"strings"

	_ "golang.org/x/image/webp" // register WebP decoder
)

// Default upload limits.
const (
	DefaultMaxImageBytes     = 10 << 20
	DefaultMinImageDimension = 100
	DefaultMaxImageDimension = 4096
)

// ImageLimits bounds accepted uploads.
type ImageLimits struct {
	MaxBytes     int
	MinDimension int
	MaxDimension int
}

// DefaultImageLimits returns the package defaults.
func DefaultImageLimits() ImageLimits {
	return ImageLimits{
		MaxBytes:     DefaultMaxImageBytes,
		MinDimension: DefaultMinImageDimension,
		MaxDimension: DefaultMaxImageDimension,
	}
}

// maxBodyBytes is the request body size that can carry a MaxBytes image
// encoded as base64 along with the rest of the JSON document.
func (l ImageLimits) maxBodyBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(l.MaxBytes)) + 64<<10
}

// DecodeImage decodes a base64 payload, optionally wrapped in a data URL,
// into a PNG, JPEG or WebP image and checks it against l.
func DecodeImage(payload string, l ImageLimits) (image.Image, string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, "", fmt.Errorf("%w: image is required", ErrInvalidImage)
	}
	if strings.HasPrefix(payload, "data:") {
		comma := strings.IndexByte(payload, ',')
		if comma < 0 || !strings.HasSuffix(payload[:comma], ";base64") {
			return nil, "", fmt.Errorf("%w: data URL must be base64 encoded", ErrInvalidImage)
		}
		payload = payload[comma+1:]
	}

	if base64.StdEncoding.DecodedLen(len(payload)) > l.MaxBytes+2 {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, l.MaxBytes)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return DecodeImageBytes(raw, l)
}

// DecodeImageBytes decodes raw PNG, JPEG or WebP bytes and checks them
// against l.
func DecodeImageBytes(raw []byte, l ImageLimits) (image.Image, string, error) {
	if len(raw) > l.MaxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(raw), l.MaxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: unsupported format: %v", ErrInvalidImage, err)
	}
	if cfg.Width < l.MinDimension || cfg.Height < l.MinDimension {
		return nil, "", fmt.Errorf("%w: %dx%d is below the %dpx minimum", ErrInvalidImage, cfg.Width, cfg.Height, l.MinDimension)
	}
	if cfg.Width > l.MaxDimension || cfg.Height > l.MaxDimension {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds the %dpx maximum", ErrInvalidImage, cfg.Width, cfg.Height, l.MaxDimension)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}
