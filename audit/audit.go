// Package audit implements the audit store: content-addressed,
// tamper-evident storage of raw messages with HMAC-signed, time-limited
// download tokens. Record tokens are reusable within their TTL; export
// tokens are one-shot.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/oonrumail/emailguard/model"
)

// Errors returned by Download/DownloadExport token handling.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Catalog is the metadata persistence capability audit depends on.
type Catalog interface {
	Store(ctx context.Context, rec *model.AuditRecord) error
	Get(ctx context.Context, id string) (*model.AuditRecord, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter model.ListFilter) ([]*model.AuditRecord, int, error)
}

// ObjectStore is the content-storage capability audit depends on.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Service implements the Audit Store.
type Service struct {
	catalog     Catalog
	objects     ObjectStore
	hmacSecret  []byte
	recordKeyFn func(id string) string
	exportKeyFn func(exportID string) string
	logger      *zap.Logger
}

// New creates an audit Service. recordKey/exportKey build the
// ObjectStore keys for a record/export id (objectstore.RecordKey/
// ExportKey in production).
func New(catalog Catalog, objects ObjectStore, hmacSecret string, recordKey, exportKey func(string) string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		catalog:     catalog,
		objects:     objects,
		hmacSecret:  []byte(hmacSecret),
		recordKeyFn: recordKey,
		exportKeyFn: exportKey,
		logger:      logger.Named("audit"),
	}
}

// Store persists rawBytes in the ObjectStore and its metadata in the
// Catalog, returning the new record.
func (s *Service) Store(ctx context.Context, rawBytes []byte, metadata map[string]string) (*model.AuditRecord, error) {
	id := uuid.NewString()
	hash := sha256Hex(rawBytes)
	now := time.Now()

	if err := s.objects.Put(ctx, s.recordKeyFn(id), rawBytes, "message/rfc822"); err != nil {
		return nil, fmt.Errorf("store object %s: %w", id, err)
	}

	rec := &model.AuditRecord{
		ID:         id,
		HashSHA256: hash,
		StoredAt:   now,
		ExpiresAt:  now.Add(model.RecordTTL),
		Metadata:   metadata,
	}
	if fromDomain, ok := metadata["fromDomain"]; ok {
		rec.FromDomain = fromDomain
	}
	if subject, ok := metadata["subjectPreview"]; ok {
		rec.SubjectPreview = subject
	}

	if err := s.catalog.Store(ctx, rec); err != nil {
		return nil, fmt.Errorf("store record %s: %w", id, err)
	}
	return rec, nil
}

// GetRaw fetches the raw message bytes for an existing record id.
func (s *Service) GetRaw(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.catalog.Get(ctx, id); err != nil {
		return nil, err
	}
	data, err := s.objects.Get(ctx, s.recordKeyFn(id))
	if err != nil {
		return nil, fmt.Errorf("fetch object %s: %w", id, err)
	}
	return data, nil
}

// DeleteRecord removes both halves of a record: the Catalog row and the
// backing object. Deletion cascades; a missing object is not an error so
// that a half-deleted record can still be cleaned up.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	if err := s.catalog.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	if err := s.objects.Delete(ctx, s.recordKeyFn(id)); err != nil {
		s.logger.Warn("failed to delete object for record", zap.String("id", id), zap.Error(err))
	}
	return nil
}

// List returns a filtered, paginated page of records.
func (s *Service) List(ctx context.Context, filter model.ListFilter) ([]*model.AuditRecord, int, error) {
	return s.catalog.List(ctx, filter)
}

// Verify recomputes the stored object's SHA-256 and compares it against
// the Catalog-recorded hash.
func (s *Service) Verify(ctx context.Context, id string) (*model.VerifyResult, error) {
	rec, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := s.objects.Get(ctx, s.recordKeyFn(id))
	if err != nil {
		return &model.VerifyResult{Stored: rec.HashSHA256, Calculated: "", IsValid: false, CheckedAt: time.Now()}, nil
	}

	calculated := sha256Hex(data)
	return &model.VerifyResult{
		Stored:     rec.HashSHA256,
		Calculated: calculated,
		IsValid:    calculated == rec.HashSHA256,
		CheckedAt:  time.Now(),
	}, nil
}

// Presign mints a signed, time-limited download token for id.
func (s *Service) Presign(id string, ttl time.Duration) (string, error) {
	return s.generateToken(model.DownloadPayload{ID: id, Exp: time.Now().Add(ttl).Unix()})
}

// Download validates token, verifies it hasn't expired, and returns the
// raw message bytes plus the record id for Content-Disposition naming.
func (s *Service) Download(ctx context.Context, token string) ([]byte, string, error) {
	payload, err := s.verifyToken(token)
	if err != nil {
		return nil, "", err
	}
	data, err := s.objects.Get(ctx, s.recordKeyFn(payload.ID))
	if err != nil {
		return nil, "", fmt.Errorf("fetch object %s: %w", payload.ID, err)
	}
	return data, payload.ID, nil
}

// PrepareExport reformats the stored message identified by recordID
// into format ("eml", "json", or "mbox"), persists it as a one-shot
// PreparedExport blob, and returns a signed download token for it.
func (s *Service) PrepareExport(ctx context.Context, recordID, format string, ttl time.Duration) (string, error) {
	rec, err := s.catalog.Get(ctx, recordID)
	if err != nil {
		return "", err
	}
	raw, err := s.objects.Get(ctx, s.recordKeyFn(recordID))
	if err != nil {
		return "", fmt.Errorf("fetch object %s: %w", recordID, err)
	}

	converted, filename, err := reformat(rec, raw, format)
	if err != nil {
		return "", err
	}

	exportID := uuid.NewString()
	expiresAt := time.Now().Add(ttl)
	export := model.PreparedExport{
		ExportID:  exportID,
		RecordID:  recordID,
		Format:    format,
		Data:      converted,
		Filename:  filename,
		ExpiresAt: expiresAt,
	}
	blob, err := json.Marshal(export)
	if err != nil {
		return "", fmt.Errorf("marshal export %s: %w", exportID, err)
	}
	if err := s.objects.Put(ctx, s.exportKeyFn(exportID), blob, "application/json"); err != nil {
		return "", fmt.Errorf("store export %s: %w", exportID, err)
	}

	return s.generateToken(model.DownloadPayload{ID: exportID, Exp: expiresAt.Unix()})
}

// DownloadExport validates an export token, fetches the one-shot blob,
// and deletes it after a successful read.
func (s *Service) DownloadExport(ctx context.Context, token string) (*model.PreparedExport, error) {
	payload, err := s.verifyToken(token)
	if err != nil {
		return nil, err
	}

	key := s.exportKeyFn(payload.ID)
	blob, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch export %s: %w", payload.ID, err)
	}

	var export model.PreparedExport
	if err := json.Unmarshal(blob, &export); err != nil {
		return nil, fmt.Errorf("unmarshal export %s: %w", payload.ID, err)
	}

	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete one-shot export after read", zap.String("exportId", payload.ID), zap.Error(err))
	}

	return &export, nil
}

func reformat(rec *model.AuditRecord, raw []byte, format string) ([]byte, string, error) {
	switch format {
	case "", "eml":
		return raw, rec.ID + ".eml", nil
	case "json":
		doc := map[string]any{
			"id":         rec.ID,
			"hashSha256": rec.HashSHA256,
			"storedAt":   rec.StoredAt,
			"raw":        base64.StdEncoding.EncodeToString(raw),
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, "", fmt.Errorf("marshal json export: %w", err)
		}
		return data, rec.ID + ".json", nil
	case "mbox":
		envelope := "From MAILER-DAEMON " + rec.StoredAt.Format(time.ANSIC) + "\n"
		return append([]byte(envelope), raw...), rec.ID + ".mbox", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func (s *Service) generateToken(payload model.DownloadPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(data)
	sig := s.sign(data)
	return encodedPayload + "." + hex.EncodeToString(sig), nil
}

func (s *Service) verifyToken(token string) (*model.DownloadPayload, error) {
	dotIdx := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dotIdx = i
			break
		}
	}
	if dotIdx == -1 {
		return nil, ErrInvalidToken
	}
	encodedPayload, sigHex := token[:dotIdx], token[dotIdx+1:]

	data, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, ErrInvalidToken
	}

	expected := s.sign(data)
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return nil, ErrInvalidToken
	}

	var payload model.DownloadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrInvalidToken
	}
	if time.Now().Unix() > payload.Exp {
		return nil, ErrExpiredToken
	}
	return &payload, nil
}

func (s *Service) sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.hmacSecret)
	mac.Write(data)
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
