package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/storage"
)

var (
	ErrTooLarge        = errors.New("attachment exceeds the upload limit")
	ErrUnsupportedType = errors.New("attachment type is not allowed")
	ErrEmpty           = errors.New("attachment is empty")
)

const defaultMaxUploadSize = 10 << 20

// Resolver stores uploaded attachments and returns the reference a chat
// message carries.
type Resolver interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*domain.Attachment, error)
}

// StorageResolver writes attachments to a Storage backend.
type StorageResolver struct {
	storage      storage.Storage
	keyPrefix    string
	maxSize      int64
	allowedTypes []string
	urlExpiry    time.Duration
	now          func() time.Time
}

func NewStorageResolver(store storage.Storage, cfg config.AttachmentConfig) *StorageResolver {
	maxSize := cfg.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	return &StorageResolver{
		storage:      store,
		keyPrefix:    strings.Trim(cfg.KeyPrefix, "/"),
		maxSize:      maxSize,
		allowedTypes: cfg.AllowedTypes,
		urlExpiry:    cfg.URLExpiry,
		now:          time.Now,
	}
}

// Upload reads at most the configured limit from r. The content type is
// sniffed from the bytes; the filename only contributes the key extension.
func (s *StorageResolver) Upload(ctx context.Context, filename string, r io.Reader) (*domain.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	mt := mimetype.Detect(data)
	if len(s.allowedTypes) > 0 && !mimetype.EqualsAny(mt.String(), s.allowedTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}

	key := s.objectKey(filename, mt)
	if err := s.storage.Write(ctx, key, bytes.NewReader(data), int64(len(data)), mt.String()); err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}

	url, err := s.storage.GetURL(ctx, key, s.urlExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attachment url: %w", err)
	}

	kind := domain.KindFromMIME(mt.String())
	l := log.Ctx(ctx)
	l.Debug().
		Str("key", key).
		Str("mime", mt.String()).
		Int("size", len(data)).
		Msg("attachment stored")

	return &domain.Attachment{URL: url, PublicID: key, Type: kind}, nil
}

func (s *StorageResolver) objectKey(filename string, mt *mimetype.MIME) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 10 {
		ext = mt.Extension()
	}
	name := fmt.Sprintf("%d-%s%s", s.now().UnixMilli(), uuid.NewString(), ext)
	if s.keyPrefix == "" {
		return name
	}
	return s.keyPrefix + "/" + name
}
