package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"recipebox/internal/config"
	"recipebox/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultImageUploadDir       = "uploads"
	DefaultImageMaxUploadSizeMB = 10
	MaxImageEdge                = 1280
	WebPQuality                 = 75

	// MaxImagePixels bounds width*height before a photo is decoded.
	MaxImagePixels = 40_000_000

	// UploadsURLPrefix is where the server mounts the upload directory.
	UploadsURLPrefix = "/uploads/"
)

// photoFormats maps image.Decode format names to the MIME type a browser
// sends for them.
var photoFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

var storedName = regexp.MustCompile(`^[0-9a-f]{64}\.webp$`)

// UploadImageInput is a recipe photo posted with a form.
type UploadImageInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ImageService stores recipe photos as WebP files named by the SHA-256 of
// the encoded bytes, so recipes with the same photo share one file.
type ImageService struct {
	dir     string
	maxSize int
}

func NewImageService(cfg *config.Config) *ImageService {
	s := &ImageService{dir: DefaultImageUploadDir, maxSize: DefaultImageMaxUploadSizeMB}
	if cfg != nil && cfg.ImageUploadDir != "" {
		s.dir = cfg.ImageUploadDir
	}
	if cfg != nil && cfg.ImageMaxUploadSizeMB > 0 {
		s.maxSize = cfg.ImageMaxUploadSizeMB
	}
	return s
}

// UploadDir returns the directory served under UploadsURLPrefix.
func (s *ImageService) UploadDir() string { return s.dir }

// Upload checks that the content is a photo in a supported format and
// that it matches the declared type, shrinks it to fit MaxImageEdge, and
// stores it. It returns the public URL.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (string, error) {
	switch {
	case len(in.Content) == 0:
		return "", models.NewValidationError("No file uploaded")
	case len(in.Content) > s.maxSize<<20:
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxSize))
	}

	sniffed := mediaType(http.DetectContentType(in.Content))
	if !isPhotoType(sniffed) {
		return "", models.NewValidationError("Invalid image type")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxImagePixels/cfg.Height {
		return "", models.NewValidationError("Image dimensions too large")
	}
	img, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}
	actual, ok := photoFormats[format]
	if !ok {
		return "", models.NewValidationError("Unsupported image format")
	}
	declared := mediaType(in.ContentType)
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if strings.HasPrefix(declared, "image/") && declared != actual {
		return "", models.NewValidationError("Image content type mismatch")
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, fitWithin(img, MaxImageEdge), &webp.Options{Quality: WebPQuality}); err != nil {
		return "", models.NewInternalError(err)
	}

	sum := sha256.Sum256(buf.Bytes())
	name := hex.EncodeToString(sum[:]) + ".webp"
	if err := s.store(name, buf.Bytes()); err != nil {
		return "", models.NewInternalError(err)
	}
	return UploadsURLPrefix + name, nil
}

// store writes data unless a file with that content hash already exists.
func (s *ImageService) store(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Remove deletes a stored upload by its public URL. Anything other than a
// stored file name under UploadsURLPrefix is ignored.
func (s *ImageService) Remove(url string) error {
	name, ok := strings.CutPrefix(url, UploadsURLPrefix)
	if !ok || !storedName.MatchString(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// fitWithin scales img down so neither side exceeds edge, keeping the
// aspect ratio.
func fitWithin(img image.Image, edge int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= edge && h <= edge {
		return img
	}
	scale := float64(edge) / float64(max(w, h))
	dst := image.NewRGBA(image.Rect(0, 0, max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isPhotoType(mt string) bool {
	for _, t := range photoFormats {
		if t == mt {
			return true
		}
	}
	return false
}
