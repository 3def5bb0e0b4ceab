package peerserver

import (
	"crypto/md5"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/inventor7/p2p/internal/apierr"
	"github.com/inventor7/p2p/internal/config"
	"github.com/inventor7/p2p/internal/filemeta"
	"go.uber.org/zap"
)

const hashChunkSize = 64 * 1024

// FileManager scans shared_root (non-recursive) and hashes each
// regular file it finds. Scans are idempotent and the index is always
// fully replaced under the lock, never mutated in place, so a
// concurrent reader sees either the old or the new map but never a
// partial one.
type FileManager struct {
	cfg    *config.Peer
	logger *zap.Logger

	mu    sync.RWMutex
	index map[string]filemeta.Metadata
}

// NewFileManager ensures shared_root exists and returns an empty
// manager; call Scan to populate the index.
func NewFileManager(cfg *config.Peer, logger *zap.Logger) (*FileManager, error) {
	if err := os.MkdirAll(cfg.SharedDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("could not create shared directory: %w", err)
	}
	return &FileManager{cfg: cfg, logger: logger, index: make(map[string]filemeta.Metadata)}, nil
}

// Scan rebuilds the index from the current contents of shared_root.
// Only regular files at the top level are considered.
func (f *FileManager) Scan() ([]filemeta.Metadata, error) {
	entries, err := os.ReadDir(f.cfg.SharedDirectory)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindInternal, "could not read shared directory", err)
	}

	next := make(map[string]filemeta.Metadata, len(entries))
	list := make([]filemeta.Metadata, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			f.logger.Warn("could not stat shared file, skipping", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		meta, err := f.metadataFor(entry.Name(), info.Size(), info.ModTime().Unix())
		if err != nil {
			f.logger.Warn("could not hash shared file, skipping", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		next[meta.Filename] = meta
		list = append(list, meta)
	}

	f.mu.Lock()
	f.index = next
	f.mu.Unlock()

	f.logger.Info("scanned shared directory", zap.Int("files", len(next)))
	return list, nil
}

func (f *FileManager) metadataFor(name string, size, modTime int64) (filemeta.Metadata, error) {
	path := filepath.Join(f.cfg.SharedDirectory, name)
	hash, err := hashFile(path)
	if err != nil {
		return filemeta.Metadata{}, err
	}

	mimeType := mime.TypeByExtension(filepath.Ext(name))
	if mimeType == "" {
		mimeType = filemeta.DefaultMimeType
	}

	return filemeta.Metadata{
		Filename:     name,
		RelativePath: name,
		Size:         size,
		ContentHash:  hash,
		LastModified: modTime,
		MimeType:     mimeType,
		Tags:         nil,
	}, nil
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// List returns the current index as a slice, in no particular order.
func (f *FileManager) List() []filemeta.Metadata {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]filemeta.Metadata, 0, len(f.index))
	for _, m := range f.index {
		out = append(out, m)
	}
	return out
}

// Count returns the number of indexed files.
func (f *FileManager) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.index)
}

// ResolvePath resolves filename within shared_root, rejecting any
// attempt to traverse outside it, and confirms the file exists.
func (f *FileManager) ResolvePath(filename string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", apierr.New(apierr.KindBadRequest, "invalid filename")
	}

	root, err := filepath.Abs(f.cfg.SharedDirectory)
	if err != nil {
		return "", apierr.Wrap(apierr.KindInternal, "could not resolve shared directory", err)
	}
	full := filepath.Join(root, filename)
	if full != filepath.Join(root, filepath.Base(full)) {
		return "", apierr.New(apierr.KindBadRequest, "invalid filename")
	}

	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return "", apierr.New(apierr.KindNotFound, "file not found")
	}
	return full, nil
}

// WriteUpload writes content into shared_root under filename,
// overwriting any existing file of the same name, enforcing the
// empty/oversize boundaries from the upload contract.
func (f *FileManager) WriteUpload(filename string, content []byte) error {
	if filename == "" || filepath.Base(filename) != filename {
		return apierr.New(apierr.KindBadRequest, "invalid filename")
	}
	if len(content) == 0 {
		return apierr.New(apierr.KindBadRequest, "uploaded file is empty")
	}
	if int64(len(content)) > f.cfg.MaxFileSize {
		return apierr.New(apierr.KindBadRequest, "uploaded file exceeds max_file_size")
	}

	path := filepath.Join(f.cfg.SharedDirectory, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return apierr.Wrap(apierr.KindInternal, "could not write uploaded file", err)
	}
	return nil
}
