package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// MediaConstraints defines validation rules for asset uploads
type MediaConstraints struct {
	AllowedMimeTypes  map[string]bool
	AllowedExtensions map[string]bool
	MaxSize           int64
}

var (
	// ImageConstraints covers photos, blog images and MMS attachments
	ImageConstraints = MediaConstraints{
		AllowedMimeTypes: map[string]bool{
			"image/jpeg": true,
			"image/png":  true,
			"image/webp": true,
			"image/gif":  true,
		},
		AllowedExtensions: map[string]bool{
			".jpg":  true,
			".jpeg": true,
			".png":  true,
			".webp": true,
			".gif":  true,
		},
		MaxSize: 20 << 20, // 20MB
	}

	// VideoConstraints covers customer visit clips
	VideoConstraints = MediaConstraints{
		AllowedMimeTypes: map[string]bool{
			"video/mp4":       true,
			"video/quicktime": true,
			"video/webm":      true,
		},
		AllowedExtensions: map[string]bool{
			".mp4":  true,
			".mov":  true,
			".webm": true,
		},
		MaxSize: 500 << 20, // 500MB
	}
)

// ValidateMedia validates asset bytes against one or more constraint sets
// and returns the detected content type.
// If multiple constraints are provided, the file must match at least one.
func ValidateMedia(fileName string, body []byte, constraints ...MediaConstraints) (string, error) {
	if len(constraints) == 0 {
		return "", fmt.Errorf("no media constraints provided")
	}

	var lastErr error
	for _, constraint := range constraints {
		contentType, err := validateAgainstConstraint(fileName, body, constraint)
		if err == nil {
			return contentType, nil
		}
		lastErr = err
	}

	return "", lastErr
}

func validateAgainstConstraint(fileName string, body []byte, constraints MediaConstraints) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty file")
	}
	if int64(len(body)) > constraints.MaxSize {
		maxMB := constraints.MaxSize / (1 << 20)
		return "", fmt.Errorf("file too large: maximum size is %d MB", maxMB)
	}

	// Detect actual content type from file content (magic numbers)
	detectedType := detectContentType(body)
	if !constraints.AllowedMimeTypes[detectedType] {
		return "", fmt.Errorf("invalid file type (detected: %s)", detectedType)
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if !constraints.AllowedExtensions[ext] {
		return "", fmt.Errorf("invalid file extension: %s", ext)
	}

	return detectedType, nil
}

// detectContentType extends http.DetectContentType with QuickTime, which
// the standard sniffer reports as application/octet-stream.
func detectContentType(body []byte) string {
	detected := http.DetectContentType(body)
	if detected == "application/octet-stream" && len(body) >= 12 &&
		bytes.Equal(body[4:8], []byte("ftyp")) && bytes.Equal(body[8:12], []byte("qt  ")) {
		return "video/quicktime"
	}
	return detected
}
