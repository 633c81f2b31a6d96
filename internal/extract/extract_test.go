package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"supercv-backend/internal/shared/storage/object/local"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create zip entry: %v", err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("write zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

const documentXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body><w:p><w:r><w:t>Ada Lovelace</w:t></w:r></w:p><w:p><w:r><w:t>Go engineer</w:t></w:r></w:p></w:body>
</w:document>`

func TestLoadDetectsDocxAndExtractsParagraphs(t *testing.T) {
	store := local.New(t.TempDir())
	data := buildZip(t, map[string]string{"word/document.xml": documentXML})
	key, _, _, err := store.Save(context.Background(), "acct-1", "cv.docx", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := Load(context.Background(), store, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.MimeType != mimeDOCX {
		t.Fatalf("expected docx mime, got %s", f.MimeType)
	}
	text, err := Text(context.Background(), f)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "Ada Lovelace\nGo engineer" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestTextRejectsPlainZip(t *testing.T) {
	data := buildZip(t, map[string]string{"notes.txt": "hello"})
	f := File{Name: "notes.zip", MimeType: detect(data, "notes.zip"), Content: data}

	_, err := Text(context.Background(), f)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if !strings.Contains(err.Error(), "application/zip") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTextRejectsRTF(t *testing.T) {
	data := []byte(`{\rtf1\ansi Ada Lovelace}`)
	f := File{Name: "cv.rtf", MimeType: detect(data, "cv.rtf"), Content: data}

	if _, err := Text(context.Background(), f); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestLoadMissingKey(t *testing.T) {
	store := local.New(t.TempDir())
	if _, err := Load(context.Background(), store, "acct-1/missing.pdf"); err == nil {
		t.Fatal("expected error for missing object")
	}
}
