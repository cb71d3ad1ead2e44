// Package covers stores downloaded album covers on disk.
//
// [Cache] computes where a cover belongs, decides which image mimetypes can be read,
// decodes fetched bytes and writes the decoded image. The query engine uses it
// for the cover stage of favorites queries.
package covers

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

var supportedMimeTypes = map[string]bool{
	"image/jpeg":  true,
	"image/jpg":   true,
	"image/pjpeg": true,
	"image/png":   true,
	"image/gif":   true,
}

// Cache writes covers below a root directory. An empty directory disables cover saving.
type Cache struct {
	dir    string
	logger *log.Logger
}

// NewCache creates a Cache rooted at dir.
func NewCache(dir string, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default()
	}
	return &Cache{dir: dir, logger: logger}
}

// Dir returns the cover root.
func (c *Cache) Dir() string {
	return c.dir
}

// CoverFilePath returns the destination for a cover, or "" when the cover should not be fetched.
//
// Files are named by album id when one is known and by a hash of album artist and album otherwise.
// The extension follows the cover URL and defaults to .jpg.
func (c *Cache) CoverFilePath(source, albumArtist, album, albumID, coverURL string) string {
	if c.dir == "" || coverURL == "" {
		return ""
	}

	u, err := url.Parse(coverURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}

	var name string
	switch {
	case albumID != "":
		name = sanitize(albumID)
	case albumArtist != "" || album != "":
		sum := sha1.Sum([]byte(strings.ToLower(albumArtist + "-" + album)))
		name = hex.EncodeToString(sum[:])
	default:
		return ""
	}

	ext := strings.ToLower(path.Ext(u.Path))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
	default:
		ext = ".jpg"
	}

	if source == "" {
		source = "unknown"
	}
	return filepath.Join(c.dir, sanitize(source), name+ext)
}

// Supports reports whether data of mimetype can be decoded. Bare format names are accepted too.
func (c *Cache) Supports(mimetype string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimetype))
	if supportedMimeTypes[mt] {
		return true
	}
	switch mt {
	case "jpeg", "jpg", "png", "gif":
		return true
	}
	return false
}

// Decode decodes image bytes in any registered format.
func (c *Cache) Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Save encodes img by the extension of dest and writes it, replacing any previous file.
func (c *Cache) Save(img image.Image, dest string) error {
	if dest == "" {
		return fmt.Errorf("empty cover path")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create cover directory: %w", err)
	}

	var buf bytes.Buffer
	var err error
	switch strings.ToLower(filepath.Ext(dest)) {
	case ".png":
		err = png.Encode(&buf, img)
	case ".gif":
		err = gif.Encode(&buf, img, nil)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write cover: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move cover into place: %w", err)
	}

	c.logger.Debug("saved album cover", "path", dest, "size", humanize.Bytes(uint64(buf.Len())))
	return nil
}

// FileURL converts a saved cover path to the file URL stored on songs.
func FileURL(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
