// image.go - Receipt image downscaling before the vision-model call

package processor

import (
	"bytes"
	"image/jpeg"
	"strings"

	"github.com/disintegration/imaging"
)

// PrepareReceipt downsizes oversized receipt images before they are sent to
// the vision model; large phone photos waste tokens without improving
// extraction. Non-image payloads (PDFs) and anything that fails to decode
// pass through untouched.
func PrepareReceipt(data []byte, mimeType string, maxDimension int) ([]byte, string) {
	if !strings.HasPrefix(mimeType, "image/") || maxDimension <= 0 {
		return data, mimeType
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, mimeType
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= maxDimension && height <= maxDimension {
		return data, mimeType
	}

	if width > height {
		img = imaging.Resize(img, maxDimension, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, maxDimension, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return data, mimeType
	}

	return buf.Bytes(), "image/jpeg"
}
