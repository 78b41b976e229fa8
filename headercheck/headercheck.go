// Package headercheck validates From/Return-Path/Reply-To domain
// alignment plus Date and Message-ID sanity.
package headercheck

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/oonrumail/emailguard/model"
)

var messageIDPattern = regexp.MustCompile(`^<.+@.+>$`)

// maxDateAge bounds how far in the past a Date header may credibly be.
const maxDateAge = 365 * 24 * time.Hour

// Analyze checks From against Return-Path/Reply-To, and validates Date
// and Message-ID.
func Analyze(req *model.AnalysisRequest) model.HeaderConsistencyResult {
	var issues []string

	fromDomain := domainOf(req, "From")

	if rp := domainOf(req, "Return-Path"); rp != "" && fromDomain != "" && !strings.EqualFold(rp, fromDomain) {
		issues = append(issues, "Return-Path domain ("+rp+") does not match From domain ("+fromDomain+")")
	}
	if rt := domainOf(req, "Reply-To"); rt != "" && fromDomain != "" && !strings.EqualFold(rt, fromDomain) {
		issues = append(issues, "Reply-To domain ("+rt+") does not match From domain ("+fromDomain+")")
	}

	if dateVal, ok := req.Header("Date"); ok {
		if parsed, err := mail.ParseDate(strings.TrimSpace(dateVal)); err != nil {
			issues = append(issues, "Date header is not parseable")
		} else {
			now := time.Now()
			if parsed.After(now) || parsed.Before(now.Add(-maxDateAge)) {
				issues = append(issues, "Date header is outside the plausible range")
			}
		}
	}

	if midVal, ok := req.Header("Message-ID"); ok {
		if !messageIDPattern.MatchString(strings.TrimSpace(midVal)) {
			issues = append(issues, "Message-ID does not match the expected <local@domain> form")
		}
	}

	return model.HeaderConsistencyResult{Issues: issues}
}

func domainOf(req *model.AnalysisRequest, header string) string {
	value, ok := req.Header(header)
	if !ok {
		return ""
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(value))
	if err != nil {
		// Some Return-Path values are bare angle-bracket addresses
		// ("<bounce@example.com>") that net/mail still parses fine; fall
		// back to a manual @-split for anything it rejects outright.
		at := strings.LastIndex(value, "@")
		if at == -1 {
			return ""
		}
		return strings.Trim(value[at+1:], " \t<>")
	}
	at := strings.LastIndex(addr.Address, "@")
	if at == -1 {
		return ""
	}
	return addr.Address[at+1:]
}
