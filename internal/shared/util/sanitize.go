package util

import (
	"errors"
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName strips directories and unsafe characters and rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.TrimSpace(name)
	s = strings.ReplaceAll(s, "\\", "/")
	s = filepath.Base(s)
	s = unsafeFileChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" || s == "." || s == "/" {
		return "", errors.New("invalid file name")
	}
	if len(s) > 255 {
		ext := filepath.Ext(s)
		s = s[:255-len(ext)] + ext
	}
	return s, nil
}
