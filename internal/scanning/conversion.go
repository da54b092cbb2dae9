package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// supportedMimeTypes is the intake gate: anything else is rejected before the
// extraction service is ever called.
var supportedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/heic":      true,
	"image/heif":      true,
}

// SupportedMimeType reports whether a declared mime type passes the intake
// gate.
func SupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[normalizeMimeType(mimeType)]
}

func normalizeMimeType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}

// pdfToPNG rasterizes the first page of a PDF.
func pdfToPNG(pdfData []byte) ([]byte, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// imageToPNG converts any supported raster format to PNG. HEIC/HEIF (the
// iPhone camera format) is not handled by Go's image package and goes through
// the dedicated decoder.
func imageToPNG(imageData []byte, mimeType string) ([]byte, error) {
	var img image.Image
	var err error

	if isHEICData(imageData) || isHEICMimeType(mimeType) {
		img, err = heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
	} else {
		img, _, err = image.Decode(bytes.NewReader(imageData))
		if err != nil {
			if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
				return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
			}
			return nil, fmt.Errorf("decoding image: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// isHEICData checks the ftyp box brand for HEIC/HEIF magic bytes.
func isHEICData(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isHEICMimeType(mimeType string) bool {
	mt := normalizeMimeType(mimeType)
	return strings.Contains(mt, "heic") || strings.Contains(mt, "heif")
}

// prepareDocument normalizes an upload for the extraction call. PDFs pass
// through untouched with their mime type; every raster format is converted to
// PNG first.
func prepareDocument(data []byte, contentType string) ([]byte, string, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	if !SupportedMimeType(mimeType) {
		return nil, "", fmt.Errorf("unsupported file type %q", mimeType)
	}
	if mimeType == "application/pdf" {
		return data, mimeType, nil
	}
	if mimeType == "image/png" && !isHEICData(data) {
		return data, mimeType, nil
	}
	pngData, err := imageToPNG(data, mimeType)
	if err != nil {
		return nil, "", fmt.Errorf("converting image to PNG: %w", err)
	}
	return pngData, "image/png", nil
}
