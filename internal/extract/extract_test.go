package extract

import (
	"context"
	"strings"
	"testing"
)

func TestTextPlain(t *testing.T) {
	got, err := Text(context.Background(), []byte("  Build free public transit  \n"), "text/plain", "proposal.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "Build free public transit" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestTextEmptyPayload(t *testing.T) {
	if _, err := Text(context.Background(), nil, "text/plain", "proposal.txt"); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}

func TestTextWhitespaceOnly(t *testing.T) {
	if _, err := Text(context.Background(), []byte("   \n\t"), "text/plain", "proposal.txt"); err == nil {
		t.Fatalf("expected error for whitespace-only payload")
	}
}

func TestTextInvalidUTF8(t *testing.T) {
	if _, err := Text(context.Background(), []byte{0xff, 0xfe, 0xfd}, "text/plain", "proposal.bin"); err == nil {
		t.Fatalf("expected error for invalid UTF-8")
	}
}

func TestTextCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Text(ctx, []byte("text"), "text/plain", "proposal.txt"); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestNormalizeMimeType(t *testing.T) {
	cases := []struct {
		mime, file string
		data       []byte
		want       string
	}{
		{"application/pdf", "x", nil, "application/pdf"},
		{"application/pdf; charset=binary", "x", nil, "application/pdf"},
		{"", "proposal.PDF", nil, "application/pdf"},
		{"application/octet-stream", "blob", []byte("%PDF-1.7 rest"), "application/pdf"},
		{"text/plain", "proposal.txt", []byte("hello"), "text/plain"},
		{"", "", nil, "text/plain"},
	}
	for _, tc := range cases {
		if got := normalizeMimeType(tc.mime, tc.file, tc.data); got != tc.want {
			t.Fatalf("normalizeMimeType(%q, %q) = %q, expected %q", tc.mime, tc.file, got, tc.want)
		}
	}
}

func TestTextCorruptPDF(t *testing.T) {
	_, err := Text(context.Background(), []byte("%PDF-1.7 not really a pdf"), "application/pdf", "proposal.pdf")
	if err == nil || !strings.Contains(err.Error(), "extract proposal text") {
		t.Fatalf("expected wrapped extraction error, got %v", err)
	}
}
