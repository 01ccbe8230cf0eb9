package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"church-chat-service/internal/models"
)

// Store is the narrow boundary to wherever uploaded media lives. The real
// object store is an external collaborator; this interface is all the chat
// core knows about it.
type Store interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Remove(ctx context.Context, url string) error
}

// DiskStore keeps uploads under a local directory and serves them from a
// base URL prefix.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore constructs a DiskStore, creating the directory if needed.
func NewDiskStore(dir string, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes the upload under a random object name, keeping the original
// extension, and returns the public URL.
func (s *DiskStore) Save(_ context.Context, filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return s.baseURL + "/" + name, nil
}

// Remove deletes a stored object by its URL. Unknown URLs are a no-op.
func (s *DiskStore) Remove(_ context.Context, url string) error {
	name := filepath.Base(url)
	if name == "." || name == "/" || name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// KindForFilename classifies an upload by extension.
func KindForFilename(filename string) models.MediaType {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return models.MediaImage
	case ".mp4", ".mov", ".webm", ".mkv":
		return models.MediaVideo
	case ".mp3", ".wav", ".ogg", ".m4a", ".aac":
		return models.MediaAudio
	default:
		return models.MediaDocument
	}
}
