// Package media issues presigned object-storage URLs scoped to exactly one
// object key and one operation. Keys are namespaced per identity: an
// identity can only ever receive presigns under its own prefix.
package media

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/driftnotes/driftsync/internal/broker/auth"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// namespacePrefix returns the object-key prefix owned by a subject.
func namespacePrefix(subject string) string {
	return "users/" + subject + "/"
}

// PresignedOperation is a time-limited, single-object authorization to
// perform one storage operation.
type PresignedOperation struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	ExpiresAt int64             `json:"expires_at"`
}

// Signer is the narrow interface over the object store's URL signer, kept
// injectable so namespace validation is testable without live storage.
type Signer interface {
	SignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedOperation, error)
	SignDownload(ctx context.Context, key string, ttl time.Duration) (*PresignedOperation, error)
	SignDelete(ctx context.Context, key string, ttl time.Duration) (*PresignedOperation, error)
}

// Service validates object keys against the caller's namespace before
// delegating to the signer.
type Service struct {
	signer Signer
	ttl    time.Duration
	logger logging.Logger
}

// NewService builds a presign service with the given URL lifetime.
func NewService(signer Signer, ttl time.Duration, logger logging.Logger) *Service {
	return &Service{
		signer: signer,
		ttl:    ttl,
		logger: logger.With("module", "media_presign"),
	}
}

// PresignUpload validates the key and signs a PUT. An optional content type
// is bound into the signature to prevent type confusion at the store.
func (s *Service) PresignUpload(ctx context.Context, claims *auth.Claims, objectKey, contentType string) (*PresignedOperation, error) {
	key, err := s.authorizeKey(claims, objectKey)
	if err != nil {
		return nil, err
	}
	op, err := s.signer.SignUpload(ctx, key, strings.TrimSpace(contentType), s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: presign upload failed: %v", common.ErrUpstreamUnavailable, err)
	}
	s.logOp(ctx, "upload", claims, key)
	return op, nil
}

// PresignDownload validates the key and signs a GET.
func (s *Service) PresignDownload(ctx context.Context, claims *auth.Claims, objectKey string) (*PresignedOperation, error) {
	key, err := s.authorizeKey(claims, objectKey)
	if err != nil {
		return nil, err
	}
	op, err := s.signer.SignDownload(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: presign download failed: %v", common.ErrUpstreamUnavailable, err)
	}
	s.logOp(ctx, "download", claims, key)
	return op, nil
}

// PresignDelete validates the key and signs a DELETE.
func (s *Service) PresignDelete(ctx context.Context, claims *auth.Claims, objectKey string) (*PresignedOperation, error) {
	key, err := s.authorizeKey(claims, objectKey)
	if err != nil {
		return nil, err
	}
	op, err := s.signer.SignDelete(ctx, key, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: presign delete failed: %v", common.ErrUpstreamUnavailable, err)
	}
	s.logOp(ctx, "delete", claims, key)
	return op, nil
}

// authorizeKey normalizes the key and enforces the namespace invariant. A
// key outside the caller's namespace is Forbidden, never signed.
func (s *Service) authorizeKey(claims *auth.Claims, raw string) (string, error) {
	key, err := normalizeObjectKey(raw)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(key, namespacePrefix(claims.Subject)) {
		return "", fmt.Errorf("%w: object key outside caller namespace", common.ErrForbidden)
	}
	return key, nil
}

func (s *Service) logOp(ctx context.Context, op string, claims *auth.Claims, key string) {
	s.logger.Info(ctx, "issued presigned URL",
		"operation", op,
		"subject", common.SubjectFingerprint(claims.Subject),
		"object_key_len", len(key),
	)
}

func normalizeObjectKey(raw string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(raw), "/")
	if key == "" {
		return "", fmt.Errorf("%w: object_key is required", common.ErrForbidden)
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: object_key must not contain path traversal segments", common.ErrForbidden)
	}
	return key, nil
}
