// Package storage implements the blob store collaborator for shared files.
package storage

import (
	"chat-presence/contract"
	"chat-presence/errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// DiskStore writes uploaded payloads under a local directory and returns a
// URL served by the gateway's static /uploads route. The content type is
// sniffed from the payload, never trusted from the client.
type DiskStore struct {
	root    string
	baseURL string
	log     *slog.Logger
}

func NewDiskStore(root, baseURL string, log *slog.Logger) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &DiskStore{root: root, baseURL: strings.TrimSuffix(baseURL, "/"), log: log}, nil
}

func (s *DiskStore) Store(data []byte, filename string) (contract.BlobInfo, error) {
	if len(data) == 0 {
		return contract.BlobInfo{}, errors.ErrEmptyUpload
	}

	detected := mimetype.Detect(data)
	name := uuid.NewString() + "-" + sanitizeFilename(filename, detected.Extension())
	path := filepath.Join(s.root, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return contract.BlobInfo{}, fmt.Errorf("write blob: %w", err)
	}

	s.log.Debug("blob stored", "name", name, "bytes", len(data), "content_type", detected.String())
	return contract.BlobInfo{
		URL:         fmt.Sprintf("%s/uploads/%s", s.baseURL, name),
		ContentType: detected.String(),
	}, nil
}

// sanitizeFilename keeps the basename only and strips characters that have
// no business in a URL path segment.
func sanitizeFilename(filename, fallbackExt string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "file" + fallbackExt
	}
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if clean == "" || strings.Trim(clean, "._") == "" {
		return "file" + fallbackExt
	}
	return clean
}
