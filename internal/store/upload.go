package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/go-logr/logr"
	"github.com/samber/do"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// FileUploader publishes into a local directory, keeping the key layout of
// the bucket.
type FileUploader struct {
	Root string
}

func NewFileUploader(i *do.Injector) (Uploader, error) {
	return &FileUploader{Root: do.MustInvoke[*config.Config](i).OutputDir}, nil
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	path, err := within(u.Root, params.Name)
	if err != nil {
		return err
	}
	log := logr.FromContextOrDiscard(ctx).WithName("file")
	log.Info("writing", "file", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return os.WriteFile(path, params.Data, 0o644)
}
