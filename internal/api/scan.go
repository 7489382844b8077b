package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipescan/internal/extract"
	"recipescan/internal/platform/events"
	"recipescan/internal/recipe"
)

type scanRequest struct {
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
	Debug    bool   `json:"debug"`
}

type scanResponse struct {
	Success     bool           `json:"success"`
	RecipeData  *recipe.Recipe `json:"recipe_data"`
	Image       *string        `json:"image"`
	Filename    string         `json:"filename"`
	ProcessedAt time.Time      `json:"processed_at"`
	Cached      bool           `json:"cached"`
	FileHash    string         `json:"file_hash"`
}

type uploadResponse struct {
	Filename string  `json:"filename"`
	Filepath string  `json:"filepath"`
	FileHash string  `json:"file_hash"`
	Image    *string `json:"image"`
}

// Upload stores a recipe document under its fingerprint so it can be
// scanned later. Images also get a preview.
func (h *Handler) Upload(c *gin.Context) {
	data, filename, err := h.readFormFile(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := uploadMIMETypes[ext]; !ok {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput,
			"invalid file type, only PNG, JPG, JPEG and PDF files are allowed", nil))
		return
	}

	fileHash := recipe.Fingerprint(data)
	path, err := saveUpload(h.uploadDir, fileHash+ext, data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var image *string
	if ext != ".pdf" {
		if _, err := savePreview(h.uploadDir, data, fileHash, ext); err != nil {
			h.log.Warn("failed to save preview", zap.String("file_hash", fileHash), zap.Error(err))
		} else {
			image = h.previewURL(fileHash, ext)
		}
	}

	h.log.Info("file uploaded",
		zap.String("filename", filename),
		zap.String("file_hash", fileHash),
		zap.Int("size", len(data)),
	)
	c.JSON(http.StatusOK, uploadResponse{
		Filename: filename,
		Filepath: path,
		FileHash: fileHash,
		Image:    image,
	})
}

// Scan extracts a recipe from a previously uploaded file.
func (h *Handler) Scan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "invalid request body", err))
		return
	}

	path, err := resolveUploadPath(h.uploadDir, req.Filepath)
	if err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "invalid file path", err))
		return
	}

	fileHash, err := recipe.FingerprintFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.AbortWithStatusJSON(http.StatusNotFound, errorBody("File not found", req.Filepath, "not_found"))
			return
		}
		h.respondError(c, err)
		return
	}

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(path)
	}
	h.scan(c, scanInput{
		mimeType: mimeTypeFor(path),
		fileHash: fileHash,
		filename: filename,
		debug:    req.Debug,
		image:    h.previewURL(fileHash, filepath.Ext(path)),
		load: func() ([]byte, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read upload: %w", err)
			}
			return data, nil
		},
	})
}

// ScanFile extracts a recipe from a file sent in the request body.
func (h *Handler) ScanFile(c *gin.Context) {
	data, filename, err := h.readFormFile(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.scan(c, scanInput{
		mimeType: mimeTypeFor(filename),
		fileHash: recipe.Fingerprint(data),
		filename: filename,
		debug:    c.PostForm("debug") == "true",
		load:     func() ([]byte, error) { return data, nil },
	})
}

// scanInput describes one document to scan. load is only called on a
// cache miss.
type scanInput struct {
	mimeType string
	fileHash string
	filename string
	debug    bool
	image    *string
	load     func() ([]byte, error)
}

func (h *Handler) scan(c *gin.Context, in scanInput) {
	if !extract.SupportedMIMEType(in.mimeType) {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, fmt.Sprintf("unsupported file type %q", in.mimeType), nil))
		return
	}
	fileHash, filename, image := in.fileHash, in.filename, in.image

	user := userID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.scanTimeout)
	defer cancel()

	if !in.debug {
		cached, err := h.cache.Lookup(ctx, fileHash)
		if err != nil {
			h.log.Warn("recipe cache lookup failed, extracting", zap.String("file_hash", fileHash), zap.Error(err))
		}
		if cached != nil {
			h.log.Info("recipe found in cache", zap.String("file_hash", fileHash), zap.String("recipe_id", cached.ID))
			if cached.Image != nil {
				image = cached.Image
			}
			h.publish(c.Request.Context(), events.Event{
				Type: events.RecipeScanned, RecipeID: cached.ID, UserID: user, FileHash: fileHash, Cached: true,
			})
			c.JSON(http.StatusOK, scanResponse{
				Success:     true,
				RecipeData:  &cached.Recipe,
				Image:       image,
				Filename:    filename,
				ProcessedAt: h.now().UTC(),
				Cached:      true,
				FileHash:    fileHash,
			})
			return
		}
	}

	h.log.Info("extracting recipe",
		zap.String("file_hash", fileHash),
		zap.String("mime_type", in.mimeType),
		zap.Bool("debug", in.debug),
	)
	data, err := in.load()
	if err != nil {
		h.respondError(c, err)
		return
	}
	r, err := h.extractor.ExtractRecipe(ctx, data, in.mimeType)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.publish(c.Request.Context(), events.Event{Type: events.RecipeScanned, UserID: user, FileHash: fileHash})
	c.JSON(http.StatusOK, scanResponse{
		Success:     true,
		RecipeData:  r,
		Image:       image,
		Filename:    filename,
		ProcessedAt: h.now().UTC(),
		FileHash:    fileHash,
	})
}

// readFormFile reads the multipart "file" field, enforcing the upload limit.
func (h *Handler) readFormFile(c *gin.Context) ([]byte, string, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, "", extract.NewError(extract.ErrInvalidInput, "missing file", err)
	}
	if file.Size > h.maxUploadBytes {
		return nil, "", extract.NewError(extract.ErrInvalidInput,
			fmt.Sprintf("file is larger than %d bytes", h.maxUploadBytes), &http.MaxBytesError{Limit: h.maxUploadBytes})
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, "", extract.NewError(extract.ErrInvalidInput, "file is empty", nil)
	}
	return data, filepath.Base(file.Filename), nil
}
