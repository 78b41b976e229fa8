package model

import "time"

// AuditRecord is the Catalog metadata row for one stored raw message.
type AuditRecord struct {
	ID             string            `json:"id"`
	HashSHA256     string            `json:"hashSha256"`
	FromDomain     string            `json:"fromDomain,omitempty"`
	SubjectPreview string            `json:"subjectPreview,omitempty"`
	StoredAt       time.Time         `json:"storedAt"`
	ExpiresAt      time.Time         `json:"expiresAt"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// RecordTTL is the fixed audit-record lifetime.
const RecordTTL = 90 * 24 * time.Hour

// ListFilter describes a paginated, filtered Catalog.List call.
type ListFilter struct {
	Search     string
	Domain     string
	HashPrefix string
	From       *time.Time
	To         *time.Time
	SortBy     string
	Descending bool
	Limit      int
	Offset     int
}

// DefaultLimit and MaxLimit bound List pagination.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// AllowedSortColumns is the sortBy allow-list; anything else falls back
// to stored_at desc (SQL-injection defense, see repository package).
var AllowedSortColumns = map[string]bool{
	"stored_at":       true,
	"from_domain":     true,
	"subject_preview": true,
}

// VerifyResult is the outcome of recomputing an AuditRecord's hash.
type VerifyResult struct {
	Stored     string    `json:"stored"`
	Calculated string    `json:"calculated"`
	IsValid    bool      `json:"isValid"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// DownloadPayload is the opaque JSON payload carried by a presigned token.
type DownloadPayload struct {
	ID  string `json:"id"`
	Exp int64  `json:"exp"`
}

// PreparedExport is the one-shot export blob referenced by an export
// token; DownloadExport deletes it after the first successful read.
type PreparedExport struct {
	ExportID  string    `json:"exportId"`
	RecordID  string    `json:"recordId"`
	Format    string    `json:"format"`
	Data      []byte    `json:"data"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expiresAt"`
}
