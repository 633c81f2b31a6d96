package analyses

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const maxUploadBytes = 10 << 20

var allowedExtensions = map[string][]string{
	".pdf":  {"application/pdf"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".rtf":  {"text/rtf"},
}

var errUploadRejected = errors.New("upload rejected")

// validateUpload checks the size, extension and magic number of an uploaded
// file and rewinds it for the caller.
func validateUpload(header *multipart.FileHeader, file multipart.File) (string, error) {
	if header.Size <= 0 {
		return "", fmt.Errorf("%w: file is empty", errUploadRejected)
	}
	if header.Size > maxUploadBytes {
		return "", fmt.Errorf("%w: file exceeds %d bytes", errUploadRejected, maxUploadBytes)
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	expected, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q is not allowed", errUploadRejected, ext)
	}
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	for _, mime := range expected {
		if detected.Is(mime) {
			return detected.String(), nil
		}
	}
	return "", fmt.Errorf("%w: content %s does not match %s", errUploadRejected, detected.String(), ext)
}

// normalizeJobURL accepts empty input or an absolute http(s) URL.
func normalizeJobURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: job description url must be an absolute http(s) URL", ErrInvalidInput)
	}
	return parsed.String(), nil
}
