// Package imagestore decodes data-URI probe images and persists them under
// the uploads directory. Files are kept for audit and never read back by
// later requests.
package imagestore

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformedPayload is returned when the payload has no "<header>,<data>" shape.
	ErrMalformedPayload = errors.New("image payload is not a data URI")
	// ErrInvalidBase64 is returned when the data segment cannot be decoded.
	ErrInvalidBase64 = errors.New("image payload is not valid base64")
)

// Probe describes a stored probe image.
type Probe struct {
	Path string
	Size int
	SHA1 string
}

// Store writes decoded probe images to a directory.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// NewStore creates dir if needed and returns a store writing into it.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, now: time.Now, newID: shortID}, nil
}

// Dir returns the uploads directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save decodes payload and writes it to a fresh file. Nothing is written when
// decoding fails.
func (s *Store) Save(payload string) (*Probe, error) {
	header, data, err := Decode(payload)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("captured_%s_%s.%s", s.now().Format("20060102150405"), s.newID(), extensionFor(header))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write probe image: %w", err)
	}

	sum := sha1.Sum(data)
	return &Probe{Path: path, Size: len(data), SHA1: hex.EncodeToString(sum[:])}, nil
}

// Decode splits a "<header>,<base64-data>" payload and decodes the data part.
func Decode(payload string) (header string, data []byte, err error) {
	header, encoded, ok := strings.Cut(payload, ",")
	if !ok {
		return "", nil, ErrMalformedPayload
	}

	encoded = strings.TrimSpace(encoded)
	data, err = base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		// canvas exports are padded, hand-built payloads often are not
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
	}
	return header, data, nil
}

func extensionFor(header string) string {
	switch {
	case strings.Contains(header, "image/jpeg"):
		return "jpg"
	case strings.Contains(header, "image/gif"):
		return "gif"
	case strings.Contains(header, "image/webp"):
		return "webp"
	default:
		return "png"
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
