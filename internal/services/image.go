package services

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// DetectImage sniffs data and confirms it decodes as a JPEG or PNG image.
// It returns the MIME type used when forwarding the image to Gemini.
func DetectImage(data []byte) (string, error) {
	if len(data) == 0 {
		return "", &ValidationError{Fields: map[string]string{"image": "Image is required"}}
	}

	mimeType := http.DetectContentType(data)
	if !allowedImageTypes[mimeType] {
		return "", &UnsupportedFormatError{Message: "Only JPG, JPEG and PNG images are supported"}
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return "", &UnsupportedFormatError{Message: "Image could not be decoded"}
	}

	return mimeType, nil
}
