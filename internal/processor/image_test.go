package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func encodeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.Black)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodeBounds(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func TestPrepareReceiptDownscalesWideImage(t *testing.T) {
	in := encodeJPEG(t, 400, 200)

	out, mimeType := PrepareReceipt(in, "image/jpeg", 100)
	if mimeType != "image/jpeg" {
		t.Errorf("mime = %q", mimeType)
	}
	w, h := decodeBounds(t, out)
	if w != 100 {
		t.Errorf("width = %d, want 100", w)
	}
	if h != 50 {
		t.Errorf("height = %d, want 50 (aspect preserved)", h)
	}
}

func TestPrepareReceiptDownscalesTallImage(t *testing.T) {
	in := encodeJPEG(t, 200, 400)

	out, _ := PrepareReceipt(in, "image/jpeg", 100)
	w, h := decodeBounds(t, out)
	if h != 100 {
		t.Errorf("height = %d, want 100", h)
	}
	if w != 50 {
		t.Errorf("width = %d, want 50 (aspect preserved)", w)
	}
}

func TestPrepareReceiptLeavesSmallImageAlone(t *testing.T) {
	in := encodeJPEG(t, 80, 60)

	out, mimeType := PrepareReceipt(in, "image/jpeg", 100)
	if !bytes.Equal(out, in) {
		t.Error("small image was re-encoded")
	}
	if mimeType != "image/jpeg" {
		t.Errorf("mime = %q", mimeType)
	}
}

func TestPrepareReceiptPassesThroughNonImages(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake document")

	out, mimeType := PrepareReceipt(pdf, "application/pdf", 100)
	if !bytes.Equal(out, pdf) || mimeType != "application/pdf" {
		t.Errorf("PDF was altered: mime=%q", mimeType)
	}
}

func TestPrepareReceiptPassesThroughUndecodableImages(t *testing.T) {
	junk := []byte("claims to be an image but is not")

	out, mimeType := PrepareReceipt(junk, "image/jpeg", 100)
	if !bytes.Equal(out, junk) || mimeType != "image/jpeg" {
		t.Errorf("undecodable payload was altered: mime=%q", mimeType)
	}
}
