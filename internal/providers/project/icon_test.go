package project

import (
	"testing"
)

// pngBytes is a minimal valid PNG header, enough for content sniffing.
var pngBytes = []byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0, 0, 0, 0x0d, 'I', 'H', 'D', 'R',
	0, 0, 0, 1, 0, 0, 0, 1, 8, 6, 0, 0, 0,
}

// icoBytes is a minimal ICO directory header.
var icoBytes = []byte{0x00, 0x00, 0x01, 0x00, 0x01, 0x00}

func TestDetectIconFindsFavicon(t *testing.T) {
	dir := scaffold(t, map[string]string{
		"public/favicon.png": string(pngBytes),
	})

	data, mime, ok := DetectIcon(dir)
	if !ok {
		t.Fatal("DetectIcon found nothing")
	}
	if mime != "image/png" {
		t.Errorf("mime = %q, want image/png", mime)
	}
	if len(data) != len(pngBytes) {
		t.Errorf("returned %d bytes, want %d", len(data), len(pngBytes))
	}
}

func TestDetectIconPrefersFaviconOverLogo(t *testing.T) {
	dir := scaffold(t, map[string]string{
		"assets/logo.png": string(pngBytes),
		"favicon.ico":     string(icoBytes),
	})

	_, mime, ok := DetectIcon(dir)
	if !ok {
		t.Fatal("DetectIcon found nothing")
	}
	if mime != "image/x-icon" {
		t.Errorf("mime = %q, want image/x-icon (favicon should outrank logo)", mime)
	}
}

func TestDetectIconSkipsDependencyDirs(t *testing.T) {
	dir := scaffold(t, map[string]string{
		"node_modules/pkg/favicon.ico": string(icoBytes),
	})

	if _, _, ok := DetectIcon(dir); ok {
		t.Error("DetectIcon picked an icon out of node_modules")
	}
}

func TestDetectIconRejectsNonImage(t *testing.T) {
	dir := scaffold(t, map[string]string{
		"favicon.ico": "definitely not an image",
	})

	if _, _, ok := DetectIcon(dir); ok {
		t.Error("DetectIcon accepted a non-image file")
	}
}

func TestDetectIconEmptyProject(t *testing.T) {
	if _, _, ok := DetectIcon(t.TempDir()); ok {
		t.Error("DetectIcon found an icon in an empty directory")
	}
}
