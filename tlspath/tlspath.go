// Package tlspath reconstructs the delivery path from Received headers
// and bands the overall transport-encryption risk.
package tlspath

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/oonrumail/emailguard/model"
)

var (
	fromPattern = regexp.MustCompile(`(?is)from\s+(\S+)`)
	byPattern   = regexp.MustCompile(`(?is)by\s+(\S+)`)
	// protoPattern captures the SMTP variant token (ESMTPS, ESMTP, SMTP, ...).
	protoPattern   = regexp.MustCompile(`(?i)\b(E?SMTPS?A?)\b`)
	cipherPattern  = regexp.MustCompile(`(?i)cipher=`)
	tlsKeyword     = regexp.MustCompile(`(?i)\bwith\s+TLS\b`)
	tlsVersionRe   = regexp.MustCompile(`(?i)TLSv?1\.[0-3]|TLS 1\.[0-3]`)
	deprecatedVers = regexp.MustCompile(`(?i)TLSv?1\.0|TLSv?1\.1|TLS 1\.0|TLS 1\.1`)
)

// Analyze reconstructs the delivery path from req's Received headers,
// origin-first, and bands the overall TLS risk.
func Analyze(req *model.AnalysisRequest) model.TLSPathResult {
	raw := req.HeaderValues("Received")
	if len(raw) == 0 {
		return model.TLSPathResult{Risk: model.RiskSafe}
	}

	// Received headers are prepended on each hop; reverse to get
	// origin→recipient order.
	hops := make([]model.TLSHop, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		hops = append(hops, parseHop(raw[i]))
	}

	unencrypted := 0
	firstUnencrypted := !hops[0].Encrypted
	var issues []string
	for _, h := range hops {
		if !h.Encrypted {
			unencrypted++
		}
		if h.TLSVersion != "" && deprecatedVers.MatchString(h.TLSVersion) {
			issues = append(issues, "deprecated TLS version on hop "+h.From)
		}
	}

	risk := model.RiskSafe
	switch {
	case float64(unencrypted)/float64(len(hops)) > 0.5 || firstUnencrypted:
		risk = model.RiskDanger
	case unencrypted > 0:
		risk = model.RiskWarning
	}

	return model.TLSPathResult{Risk: risk, Hops: hops, Issues: issues}
}

func parseHop(raw string) model.TLSHop {
	hop := model.TLSHop{}

	if m := fromPattern.FindStringSubmatch(raw); m != nil {
		hop.From = strings.Trim(m[1], "();")
	}
	if m := byPattern.FindStringSubmatch(raw); m != nil {
		hop.By = strings.Trim(m[1], "();")
	}
	if m := protoPattern.FindStringSubmatch(raw); m != nil {
		hop.Protocol = strings.ToUpper(m[1])
	}
	if m := tlsVersionRe.FindString(raw); m != "" {
		hop.TLSVersion = m
	}

	hop.Encrypted = strings.HasSuffix(hop.Protocol, "S") ||
		tlsKeyword.MatchString(raw) || cipherPattern.MatchString(raw)

	if idx := strings.LastIndex(raw, ";"); idx != -1 {
		if ts, err := mail.ParseDate(strings.TrimSpace(raw[idx+1:])); err == nil {
			hop.Timestamp = &ts
		}
	}

	return hop
}
