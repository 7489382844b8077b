package api

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

const (
	previewWidth = 800
	previewDir   = "previews"
)

var errOutsideUploadDir = errors.New("path is outside the upload directory")

var uploadMIMETypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".pdf":  "application/pdf",
}

// mimeTypeFor guesses a file's type from its extension.
func mimeTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := uploadMIMETypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		// Drop parameters such as "; charset=utf-8".
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = strings.TrimSpace(t[:i])
		}
		return t
	}
	return "application/octet-stream"
}

// resolveUploadPath maps a client supplied path onto a file inside dir.
// Relative paths are taken relative to dir.
func resolveUploadPath(dir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errOutsideUploadDir
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload directory: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideUploadDir
	}
	return target, nil
}

// saveUpload writes data to dir/name and returns the absolute path.
func saveUpload(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload path: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}
	return path, nil
}

// savePreview stores an image scaled down to previewWidth under
// dir/previews and returns the file name.
func savePreview(dir string, imageData []byte, fileHash, ext string) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	if img.Bounds().Dx() > previewWidth {
		img = resize.Resize(previewWidth, 0, img, resize.Lanczos3)
	}

	if err := os.MkdirAll(filepath.Join(dir, previewDir), 0o755); err != nil {
		return "", fmt.Errorf("failed to create preview directory: %w", err)
	}

	name := fileHash + ext
	out, err := os.Create(filepath.Join(dir, previewDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to create preview file: %w", err)
	}
	defer out.Close()

	switch ext {
	case ".jpeg", ".jpg":
		err = jpeg.Encode(out, img, nil)
	case ".png":
		err = png.Encode(out, img)
	default:
		return "", fmt.Errorf("unsupported image format: %s", ext)
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return name, nil
}

// previewURL returns the public path of an existing preview, or nil.
func (h *Handler) previewURL(fileHash, ext string) *string {
	name := fileHash + strings.ToLower(ext)
	if _, err := os.Stat(filepath.Join(h.uploadDir, previewDir, name)); err != nil {
		return nil
	}
	url := "/uploads/" + previewDir + "/" + name
	return &url
}
