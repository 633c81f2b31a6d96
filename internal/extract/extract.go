// Package extract pulls plain text out of uploaded CV files.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"supercv-backend/internal/shared/storage/object"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeZIP  = "application/zip"

	maxFileBytes = 10 << 20
)

// ErrUnsupported is returned for formats without a local extractor.
var ErrUnsupported = errors.New("unsupported document type")

// File is an uploaded document loaded into memory.
type File struct {
	Key      string
	Name     string
	MimeType string
	Content  []byte
}

// Load reads a stored upload and sniffs its content type.
func Load(ctx context.Context, store object.ObjectStore, key string) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}
	body, err := store.Open(ctx, key)
	if err != nil {
		return File{}, fmt.Errorf("open %s: %w", key, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, maxFileBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(raw) > maxFileBytes {
		return File{}, fmt.Errorf("read %s: file exceeds %d bytes", key, maxFileBytes)
	}
	name := path.Base(key)
	return File{Key: key, Name: name, MimeType: detect(raw, name), Content: raw}, nil
}

// Text extracts plain text from f. PDF and DOCX are supported; other types
// return ErrUnsupported so callers can fall back to sending the raw file.
func Text(ctx context.Context, f File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch f.MimeType {
	case mimePDF:
		return extractPDF(f.Content)
	case mimeDOCX:
		return extractDOCX(f.Content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, f.MimeType)
	}
}

func detect(data []byte, fileName string) string {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is(mimeDOCX):
		return mimeDOCX
	case mt.Is(mimeZIP):
		if hasDocumentXML(data) || strings.EqualFold(path.Ext(fileName), ".docx") {
			return mimeDOCX
		}
		return mimeZIP
	default:
		return strings.Split(mt.String(), ";")[0]
	}
}

func extractPDF(data []byte) (string, error) {
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("document.xml file not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return stripDocxXML(string(raw)), nil
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return raw
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.WriteString(string(t))
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func hasDocumentXML(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}
