package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aescanero/periphery/pkg/domain"
	"go.uber.org/zap"
)

const gcsScheme = "gs://"

// Loader reads manifests from a path or a gs://bucket/object URL.
type Loader struct {
	logger *zap.Logger
}

// NewLoader creates a new manifest loader
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load reads and parses the manifest at location.
func (l *Loader) Load(ctx context.Context, location string) (*domain.Model, error) {
	if location == "" {
		return nil, fmt.Errorf("%w: manifest location is required", domain.ErrInvalidConfig)
	}

	startedAt := time.Now()
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(location, gcsScheme) {
		data, err = l.readGCS(ctx, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest %q: %w", location, err)
	}

	model, err := Parse(data)
	if err != nil {
		return nil, err
	}

	l.logger.Info("manifest loaded",
		zap.String("location", location),
		zap.String("model", model.Name),
		zap.Int("operators", len(model.Operators)),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(startedAt)))

	return model, nil
}

func (l *Loader) readGCS(ctx context.Context, url string) ([]byte, error) {
	bucket, object, err := splitGCSURL(url)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, url)
		}
		return nil, fmt.Errorf("opening object from GCS %q: %w", url, err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

// splitGCSURL splits gs://bucket/path/to/object.
func splitGCSURL(url string) (bucket, object string, err error) {
	rest := strings.TrimPrefix(url, gcsScheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("%w: malformed GCS URL %q", domain.ErrInvalidConfig, url)
	}
	return bucket, object, nil
}
