// Package httpapi is the chi-routed JSON API over the orchestrator, the
// DNS resolver, and the audit store. Graceful shutdown is left to
// cmd/emailguard.
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/oonrumail/emailguard/arc"
	"github.com/oonrumail/emailguard/audit"
	"github.com/oonrumail/emailguard/confusables"
	"github.com/oonrumail/emailguard/dkim"
	"github.com/oonrumail/emailguard/dmarc"
	"github.com/oonrumail/emailguard/model"
	"github.com/oonrumail/emailguard/orchestrator"
	"github.com/oonrumail/emailguard/resolver"
	"github.com/oonrumail/emailguard/spf"
)

// Resolver is the DNS capability the API's passthrough and verify
// endpoints depend on.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupA(ctx context.Context, name string) ([]string, error)
	LookupMX(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, name string) ([]string, error)
}

// Analyzer is the capability AnalyzeFull/AnalyzeQuick depend on.
type Analyzer interface {
	AnalyzeFull(ctx context.Context, req *model.AnalysisRequest) *model.AnalysisResult
	AnalyzeQuick(req *model.AnalysisRequest) *model.AnalysisResult
}

// AdminCredentials holds the Basic-auth username and sha256(password) hex
// hash checked by the admin middleware.
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// Handler wires every route to its backing capability.
type Handler struct {
	analyzer Analyzer
	resolver Resolver
	audit    *audit.Service
	admin    AdminCredentials
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a Handler.
func New(analyzer Analyzer, res Resolver, auditSvc *audit.Service, admin AdminCredentials, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		analyzer: analyzer,
		resolver: res,
		audit:    auditSvc,
		admin:    admin,
		validate: validator.New(),
		logger:   logger.Named("httpapi"),
	}
}

// Router assembles the full chi route tree, recovery middleware, and
// CORS allowing every origin.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/health", h.handleHealth)

	r.Post("/api/verify", h.handleVerify)
	r.Post("/api/store", h.handleStore)
	r.Post("/api/analyze", h.handleAnalyzeFull)
	r.Post("/api/analyze/quick", h.handleAnalyzeQuick)
	r.Post("/api/security/dkim", h.handleSecurityDKIM)
	r.Post("/api/security/arc", h.handleSecurityARC)
	r.Post("/api/security/confusables", h.handleSecurityConfusables)
	r.Get("/api/dns/{type}/{name}", h.handleDNSPassthrough)

	r.Get("/api/download/{token}", h.handleDownload)
	r.Post("/api/export/prepare", h.handleExportPrepare)
	r.Get("/api/export/download/{token}", h.handleExportDownload)

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.adminAuth)
		r.Get("/records", h.handleAdminList)
		r.Get("/records/summary", h.handleAdminSummary)
		r.Get("/records/domains", h.handleAdminDomains)
		r.Get("/records/stats", h.handleAdminStats)
		r.Get("/records/export", h.handleAdminExport)
		r.Post("/records/bulk-delete", h.handleAdminBulkDelete)
		r.Get("/records/{id}/download", h.handleAdminDownload)
		r.Post("/records/{id}/presign", h.handleAdminPresign)
		r.Post("/records/{id}/verify", h.handleAdminVerify)
	})

	return r
}

// --- error taxonomy ---

type apiError struct {
	status  int
	message string
}

func badRequest(message string) apiError   { return apiError{http.StatusBadRequest, message} }
func notFound(message string) apiError     { return apiError{http.StatusNotFound, message} }
func forbidden(message string) apiError    { return apiError{http.StatusForbidden, message} }
func internal(message string) apiError     { return apiError{http.StatusInternalServerError, message} }
func unauthorized(message string) apiError { return apiError{http.StatusUnauthorized, message} }

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, apiErr apiError) {
	if apiErr.status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="Admin Area"`)
	}
	h.respondJSON(w, apiErr.status, map[string]string{"error": apiErr.message})
}

func (h *Handler) decodeAndValidate(r *http.Request, dto any) *apiError {
	if err := json.NewDecoder(r.Body).Decode(dto); err != nil {
		e := badRequest("invalid request body: " + err.Error())
		return &e
	}
	if err := h.validate.Struct(dto); err != nil {
		e := badRequest("validation failed: " + err.Error())
		return &e
	}
	return nil
}

// --- admin auth ---

func (h *Handler) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			h.respondError(w, unauthorized("authentication required"))
			return
		}
		sum := sha256.Sum256([]byte(password))
		hash := hex.EncodeToString(sum[:])
		usernameMatch := subtle.ConstantTimeCompare([]byte(username), []byte(h.admin.Username)) == 1
		hashMatch := subtle.ConstantTimeCompare([]byte(hash), []byte(h.admin.PasswordHash)) == 1
		if !usernameMatch || !hashMatch {
			h.respondError(w, unauthorized("invalid credentials"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- health ---

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// --- verify ---

type verifyRequest struct {
	Domain       string `json:"domain" validate:"required,fqdn"`
	DKIMSelector string `json:"dkimSelector"`
}

type verifyResponse struct {
	SPF       *spf.Record    `json:"spf,omitempty"`
	DMARC     *dmarc.Record  `json:"dmarc,omitempty"`
	DKIMFound bool           `json:"dkimFound"`
	DKIMRaw   string         `json:"dkimRaw,omitempty"`
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if apiErr := h.decodeAndValidate(r, &req); apiErr != nil {
		h.respondError(w, *apiErr)
		return
	}

	ctx := r.Context()
	resp := verifyResponse{}

	if spfRecord, err := spf.Lookup(ctx, h.resolver, req.Domain); err == nil {
		resp.SPF = spfRecord
	}
	if dmarcRecord, err := dmarc.Lookup(ctx, h.resolver, req.Domain); err == nil {
		resp.DMARC = dmarcRecord
	}
	if req.DKIMSelector != "" {
		name := req.DKIMSelector + "._domainkey." + req.Domain
		if chunks, err := h.resolver.LookupTXT(ctx, name); err == nil && len(chunks) > 0 {
			resp.DKIMFound = true
			for _, c := range chunks {
				resp.DKIMRaw += c
			}
		}
	}

	h.respondJSON(w, http.StatusOK, resp)
}

// --- store ---

type storeRequest struct {
	EMLBase64 string            `json:"emlBase64" validate:"required"`
	Metadata  map[string]string `json:"metadata"`
}

func (h *Handler) handleStore(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if apiErr := h.decodeAndValidate(r, &req); apiErr != nil {
		h.respondError(w, *apiErr)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.EMLBase64)
	if err != nil {
		h.respondError(w, badRequest("emlBase64 is not valid base64"))
		return
	}

	rec, err := h.audit.Store(r.Context(), raw, req.Metadata)
	if err != nil {
		h.logger.Error("failed to store audit record", zap.Error(err))
		h.respondError(w, internal("failed to store record"))
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"id":       rec.ID,
		"hash":     rec.HashSHA256,
		"storedAt": rec.StoredAt,
	})
}

// --- analyze ---

type headerDTO struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

type attachmentDTO struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type analyzeRequest struct {
	Headers     []headerDTO       `json:"headers"`
	RawHeaders  string            `json:"rawHeaders"`
	BodyBase64  string            `json:"bodyBase64"`
	Subject     string            `json:"subject"`
	HTML        string            `json:"html"`
	Text        string            `json:"text"`
	Attachments []attachmentDTO   `json:"attachments"`
	AuthResults map[string]string `json:"authResults"`
}

func (dto *analyzeRequest) toModel() (*model.AnalysisRequest, error) {
	var body []byte
	if dto.BodyBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(dto.BodyBase64)
		if err != nil {
			return nil, err
		}
		body = decoded
	}

	req := &model.AnalysisRequest{
		RawHeaders:  dto.RawHeaders,
		Body:        body,
		Subject:     dto.Subject,
		HTML:        dto.HTML,
		Text:        dto.Text,
		AuthResults: dto.AuthResults,
	}
	for _, hdr := range dto.Headers {
		req.Headers = append(req.Headers, model.EmailHeader{Name: hdr.Name, Value: hdr.Value})
	}
	for _, a := range dto.Attachments {
		req.Attachments = append(req.Attachments, model.Attachment{Filename: a.Filename, MIMEType: a.MIMEType, Size: a.Size})
	}
	return req, nil
}

func (h *Handler) handleAnalyzeFull(w http.ResponseWriter, r *http.Request) {
	var dto analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.respondError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	req, err := dto.toModel()
	if err != nil {
		h.respondError(w, badRequest("bodyBase64 is not valid base64"))
		return
	}

	result := h.analyzer.AnalyzeFull(r.Context(), req)
	h.respondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAnalyzeQuick(w http.ResponseWriter, r *http.Request) {
	var dto analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.respondError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	req, err := dto.toModel()
	if err != nil {
		h.respondError(w, badRequest("bodyBase64 is not valid base64"))
		return
	}

	result := h.analyzer.AnalyzeQuick(req)
	h.respondJSON(w, http.StatusOK, result)
}

// --- per-factor security endpoints ---

type securityDKIMRequest struct {
	Headers    []headerDTO `json:"headers"`
	RawHeaders string      `json:"rawHeaders"`
	BodyBase64 string      `json:"body"`
}

func (h *Handler) handleSecurityDKIM(w http.ResponseWriter, r *http.Request) {
	var dto securityDKIMRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.respondError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	var body []byte
	if dto.BodyBase64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(dto.BodyBase64)
		if err != nil {
			h.respondError(w, badRequest("body is not valid base64"))
			return
		}
		body = decoded
	}

	req := &model.AnalysisRequest{RawHeaders: dto.RawHeaders, Body: body}
	for _, hdr := range dto.Headers {
		req.Headers = append(req.Headers, model.EmailHeader{Name: hdr.Name, Value: hdr.Value})
	}

	result := dkim.Verify(r.Context(), req, h.resolver)
	h.respondJSON(w, http.StatusOK, result)
}

type securityARCRequest struct {
	Headers []headerDTO `json:"headers"`
}

func (h *Handler) handleSecurityARC(w http.ResponseWriter, r *http.Request) {
	var dto securityARCRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.respondError(w, badRequest("invalid request body: "+err.Error()))
		return
	}
	req := &model.AnalysisRequest{}
	for _, hdr := range dto.Headers {
		req.Headers = append(req.Headers, model.EmailHeader{Name: hdr.Name, Value: hdr.Value})
	}

	result := arc.Verify(r.Context(), req, h.resolver)
	h.respondJSON(w, http.StatusOK, result)
}

type securityConfusablesRequest struct {
	Domain  string   `json:"domain"`
	Domains []string `json:"domains"`
}

func (h *Handler) handleSecurityConfusables(w http.ResponseWriter, r *http.Request) {
	var dto securityConfusablesRequest
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.respondError(w, badRequest("invalid request body: "+err.Error()))
		return
	}

	domains := dto.Domains
	if dto.Domain != "" {
		domains = append(domains, dto.Domain)
	}
	if len(domains) == 0 {
		h.respondError(w, badRequest("domain or domains is required"))
		return
	}

	results := make([]model.DomainResult, 0, len(domains))
	for _, d := range domains {
		results = append(results, confusables.Analyze(d))
	}

	if dto.Domain != "" && len(dto.Domains) == 0 {
		h.respondJSON(w, http.StatusOK, results[0])
		return
	}
	h.respondJSON(w, http.StatusOK, results)
}

// --- DNS passthrough ---

func (h *Handler) handleDNSPassthrough(w http.ResponseWriter, r *http.Request) {
	recordType := chi.URLParam(r, "type")
	name := chi.URLParam(r, "name")

	var records []string
	var err error
	switch recordType {
	case "txt":
		records, err = h.resolver.LookupTXT(r.Context(), name)
	case "a":
		records, err = h.resolver.LookupA(r.Context(), name)
	case "mx":
		records, err = h.resolver.LookupMX(r.Context(), name)
	case "cname":
		records, err = h.resolver.LookupCNAME(r.Context(), name)
	default:
		h.respondError(w, badRequest("unsupported record type: "+recordType))
		return
	}
	if err != nil {
		h.respondError(w, internal("dns lookup failed: "+err.Error()))
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"name": name, "type": recordType, "records": records})
}

// --- download / export ---

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	data, id, err := h.audit.Download(r.Context(), token)
	if err != nil {
		h.respondDownloadError(w, err)
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.eml"`)
	w.Write(data)
}

type exportPrepareRequest struct {
	RecordID   string `json:"recordId" validate:"required"`
	Format     string `json:"format"`
	TTLMinutes int    `json:"ttlMinutes"`
}

func (h *Handler) handleExportPrepare(w http.ResponseWriter, r *http.Request) {
	var req exportPrepareRequest
	if apiErr := h.decodeAndValidate(r, &req); apiErr != nil {
		h.respondError(w, *apiErr)
		return
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 60 * time.Minute
	}

	token, err := h.audit.PrepareExport(r.Context(), req.RecordID, req.Format, ttl)
	if err != nil {
		h.logger.Error("failed to prepare export", zap.Error(err))
		h.respondError(w, internal("failed to prepare export"))
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	export, err := h.audit.DownloadExport(r.Context(), token)
	if err != nil {
		h.respondDownloadError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Write(export.Data)
}

func (h *Handler) respondDownloadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audit.ErrExpiredToken), errors.Is(err, audit.ErrInvalidToken):
		h.respondError(w, forbidden("invalid or expired token"))
	default:
		h.respondError(w, notFound("object not found"))
	}
}

// --- admin ---

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.ListFilter{
		Search:     q.Get("search"),
		Domain:     q.Get("domain"),
		HashPrefix: q.Get("hashPrefix"),
		SortBy:     q.Get("sortBy"),
		Descending: q.Get("order") == "desc",
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = v
	}

	records, total, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list records", zap.Error(err))
		h.respondError(w, internal("failed to list records"))
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"records": records, "total": total})
}

func (h *Handler) handleAdminSummary(w http.ResponseWriter, r *http.Request) {
	records, total, err := h.audit.List(r.Context(), model.ListFilter{Limit: model.MaxLimit})
	if err != nil {
		h.logger.Error("failed to summarize records", zap.Error(err))
		h.respondError(w, internal("failed to summarize records"))
		return
	}

	byDomain := make(map[string]int)
	for _, rec := range records {
		if rec.FromDomain != "" {
			byDomain[rec.FromDomain]++
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"total": total, "byDomain": byDomain})
}

func (h *Handler) handleAdminDomains(w http.ResponseWriter, r *http.Request) {
	records, _, err := h.audit.List(r.Context(), model.ListFilter{Limit: model.MaxLimit})
	if err != nil {
		h.logger.Error("failed to list record domains", zap.Error(err))
		h.respondError(w, internal("failed to list domains"))
		return
	}

	seen := make(map[string]bool)
	domains := make([]string, 0)
	for _, rec := range records {
		if rec.FromDomain != "" && !seen[rec.FromDomain] {
			seen[rec.FromDomain] = true
			domains = append(domains, rec.FromDomain)
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"domains": domains})
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	records, total, err := h.audit.List(r.Context(), model.ListFilter{Limit: model.MaxLimit, SortBy: "stored_at", Descending: true})
	if err != nil {
		h.logger.Error("failed to compute record stats", zap.Error(err))
		h.respondError(w, internal("failed to compute stats"))
		return
	}

	stats := map[string]any{"totalRecords": total}
	if len(records) > 0 {
		stats["newestStoredAt"] = records[0].StoredAt
		stats["oldestStoredAt"] = records[len(records)-1].StoredAt
	}
	h.respondJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	records, _, err := h.audit.List(r.Context(), model.ListFilter{Limit: model.MaxLimit})
	if err != nil {
		h.logger.Error("failed to export records", zap.Error(err))
		h.respondError(w, internal("failed to export records"))
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="eml_records.json"`)
	h.respondJSON(w, http.StatusOK, map[string]any{"records": records})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

func (h *Handler) handleAdminBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if apiErr := h.decodeAndValidate(r, &req); apiErr != nil {
		h.respondError(w, *apiErr)
		return
	}

	deleted := 0
	for _, id := range req.IDs {
		if err := h.audit.DeleteRecord(r.Context(), id); err != nil {
			h.logger.Warn("failed to delete record", zap.String("id", id), zap.Error(err))
			continue
		}
		deleted++
	}
	h.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (h *Handler) handleAdminDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := h.audit.GetRaw(r.Context(), id)
	if err != nil {
		h.respondError(w, notFound("record not found"))
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.eml"`)
	w.Write(data)
}

func (h *Handler) handleAdminPresign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ttl := 15 * time.Minute
	if v, err := strconv.Atoi(r.URL.Query().Get("expires")); err == nil && v > 0 {
		ttl = time.Duration(v) * time.Minute
	}

	token, err := h.audit.Presign(id, ttl)
	if err != nil {
		h.respondError(w, internal("failed to presign"))
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"token": token, "url": "/api/download/" + token})
}

func (h *Handler) handleAdminVerify(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := h.audit.Verify(r.Context(), id)
	if err != nil {
		h.respondError(w, notFound("record not found"))
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// compile-time interface checks
var _ Resolver = (*resolver.Resolver)(nil)
var _ Analyzer = (*orchestrator.Orchestrator)(nil)
