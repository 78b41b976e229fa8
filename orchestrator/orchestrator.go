// Package orchestrator fans out the eight independent analysis factors
// for one request, joins them, and scores the combined result. The
// DNS-backed DKIM and ARC factors each run under their own deadline, so
// a slow lookup degrades only that factor's result; the other factors
// run without a per-factor deadline.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/oonrumail/emailguard/arc"
	"github.com/oonrumail/emailguard/attachment"
	"github.com/oonrumail/emailguard/bec"
	"github.com/oonrumail/emailguard/confusables"
	"github.com/oonrumail/emailguard/dkim"
	"github.com/oonrumail/emailguard/headercheck"
	"github.com/oonrumail/emailguard/link"
	"github.com/oonrumail/emailguard/model"
	"github.com/oonrumail/emailguard/scorer"
	"github.com/oonrumail/emailguard/tlspath"
)

// Version is embedded in every AnalysisResult, for client-side cache
// invalidation when the scoring model changes.
const Version = "1.0"

var (
	factorDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "emailguard_factor_duration_seconds",
		Help:    "Duration of a single analysis factor.",
		Buckets: prometheus.DefBuckets,
	}, []string{"factor"})

	factorTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emailguard_factor_timeouts_total",
		Help: "Count of analysis factors that exceeded their deadline.",
	}, []string{"factor"})
)

// Resolver is the DNS capability the DKIM/ARC factors depend on;
// resolver.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DefaultPerFactorTimeout and DefaultTotalTimeout are the fallback
// deadlines when config doesn't override them.
const (
	DefaultPerFactorTimeout = 5 * time.Second
	DefaultTotalTimeout     = 10 * time.Second
)

// Orchestrator schedules the fan-out/fan-in analysis of one request.
type Orchestrator struct {
	resolver         Resolver
	perFactorTimeout time.Duration
	totalTimeout     time.Duration
	logger           *zap.Logger
}

// New creates an Orchestrator. A zero timeout falls back to the package
// defaults.
func New(resolver Resolver, perFactorTimeout, totalTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if perFactorTimeout <= 0 {
		perFactorTimeout = DefaultPerFactorTimeout
	}
	if totalTimeout <= 0 {
		totalTimeout = DefaultTotalTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver:         resolver,
		perFactorTimeout: perFactorTimeout,
		totalTimeout:     totalTimeout,
		logger:           logger.Named("orchestrator"),
	}
}

// AnalyzeFull runs all eight factors, including the DNS-dependent DKIM
// and ARC verifiers.
func (o *Orchestrator) AnalyzeFull(ctx context.Context, req *model.AnalysisRequest) *model.AnalysisResult {
	ctx, cancel := context.WithTimeout(ctx, o.totalTimeout)
	defer cancel()

	result := &model.AnalysisResult{AnalyzedAt: time.Now(), Version: Version}

	var wg sync.WaitGroup
	wg.Add(8)

	go o.runDKIM(ctx, req, result, &wg)
	go o.runARC(ctx, req, result, &wg)
	go o.runTLSPath(req, result, &wg)
	go o.runLinks(req, result, &wg)
	go o.runAttachments(req, result, &wg)
	go o.runBEC(req, result, &wg)
	go o.runDomain(req, result, &wg)
	go o.runHeaderCheck(req, result, &wg)

	wg.Wait()

	result.Score = scorer.Score(req, result)
	return result
}

// AnalyzeQuick runs every factor except DKIM and ARC, leaving both nil
// in the response.
func (o *Orchestrator) AnalyzeQuick(req *model.AnalysisRequest) *model.AnalysisResult {
	result := &model.AnalysisResult{AnalyzedAt: time.Now(), Version: Version}

	var wg sync.WaitGroup
	wg.Add(6)

	go o.runTLSPath(req, result, &wg)
	go o.runLinks(req, result, &wg)
	go o.runAttachments(req, result, &wg)
	go o.runBEC(req, result, &wg)
	go o.runDomain(req, result, &wg)
	go o.runHeaderCheck(req, result, &wg)

	wg.Wait()

	result.Score = scorer.Score(req, result)
	return result
}

func (o *Orchestrator) runDKIM(ctx context.Context, req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	const factor = "dkim"
	defer observe(factor)()

	factorCtx, cancel := context.WithTimeout(ctx, o.perFactorTimeout)
	defer cancel()

	done := make(chan *model.DKIMResult, 1)
	go func() { done <- dkim.Verify(factorCtx, req, o.resolver) }()

	select {
	case r := <-done:
		result.DKIM = r
	case <-factorCtx.Done():
		factorTimeouts.WithLabelValues(factor).Inc()
		result.DKIM = &model.DKIMResult{Status: model.DKIMTempError, Issues: []string{"analysis timed out"}}
	}
}

func (o *Orchestrator) runARC(ctx context.Context, req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	const factor = "arc"
	defer observe(factor)()

	factorCtx, cancel := context.WithTimeout(ctx, o.perFactorTimeout)
	defer cancel()

	done := make(chan *model.ARCResult, 1)
	go func() { done <- arc.Verify(factorCtx, req, o.resolver) }()

	select {
	case r := <-done:
		result.ARC = r
	case <-factorCtx.Done():
		factorTimeouts.WithLabelValues(factor).Inc()
		result.ARC = &model.ARCResult{Status: model.ARCFail, Issues: []string{"analysis timed out"}}
	}
}

func (o *Orchestrator) runTLSPath(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("tlspath")()
	result.TLSPath = tlspath.Analyze(req)
}

func (o *Orchestrator) runLinks(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("links")()
	result.Links = link.Analyze(req)
}

func (o *Orchestrator) runAttachments(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("attachments")()
	result.Attachments = attachment.Analyze(req)
}

func (o *Orchestrator) runBEC(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("bec")()
	result.BEC = bec.Analyze(req)
}

func (o *Orchestrator) runDomain(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("domain")()
	fromDomain := senderDomain(req)
	if fromDomain == "" {
		result.Domain = model.DomainResult{Risk: model.RiskNone}
		return
	}
	result.Domain = confusables.Analyze(fromDomain)
}

func (o *Orchestrator) runHeaderCheck(req *model.AnalysisRequest, result *model.AnalysisResult, wg *sync.WaitGroup) {
	defer wg.Done()
	defer observe("headercheck")()
	result.HeaderConsistency = headercheck.Analyze(req)
}

func observe(factor string) func() {
	start := time.Now()
	return func() {
		factorDuration.WithLabelValues(factor).Observe(time.Since(start).Seconds())
	}
}

func senderDomain(req *model.AnalysisRequest) string {
	from, ok := req.Header("From")
	if !ok {
		return ""
	}
	at := indexByte(from, '@')
	if at == -1 {
		return ""
	}
	end := len(from)
	for i := at + 1; i < len(from); i++ {
		if from[i] == '>' || from[i] == ' ' || from[i] == ',' {
			end = i
			break
		}
	}
	return from[at+1 : end]
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}
