// Package storage uploads normalized scan images to object storage and
// returns the URL recorded with the scan.
package storage

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/plantid/internal/conf"
	"github.com/tphakala/plantid/internal/errors"
	"github.com/tphakala/plantid/internal/logger"
)

// ObjectStore stores an object and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// New builds the backend selected in settings. It returns nil, nil when
// storage is disabled.
func New(ctx context.Context, settings *conf.StorageSettings, log logger.Logger) (ObjectStore, error) {
	if !settings.Enabled {
		return nil, nil
	}
	if log == nil {
		log = logger.Global().Module("storage")
	}

	switch settings.Backend {
	case conf.StorageBackendMinio:
		s, err := NewMinioStore(ctx, settings, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case conf.StorageBackendS3:
		s, err := NewS3Store(ctx, settings, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Newf("unknown storage backend %q", settings.Backend).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// ScanImageKey builds "<prefix>scans/<user|anonymous>/<yyyy/mm/dd>/<uuid>.jpg".
func ScanImageKey(prefix string, userID *string, now time.Time) string {
	owner := "anonymous"
	if userID != nil && *userID != "" {
		owner = url.PathEscape(*userID)
	}
	key := path.Join("scans", owner, now.UTC().Format("2006/01/02"), uuid.NewString()+".jpg")
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

// objectURL joins base and key. base is either the configured public URL
// or a backend-derived bucket URL.
func objectURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

func storageError(err error, backend, operation string) error {
	return errors.New(err).
		Component("storage").
		Category(errors.CategoryStorage).
		Context("backend", backend).
		Context("operation", operation).
		Build()
}
