// Package spf parses SPF TXT records into their mechanism tokens. It
// does not evaluate SPF policy (which requires connection-time IP
// context); it only tokenizes the record for display via /api/verify.
package spf

import (
	"context"
	"strings"
)

// Resolver is the DNS capability spf depends on.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Record is a parsed SPF record.
type Record struct {
	Raw        string
	Mechanisms []string
	Qualifier  string // the "all" mechanism's qualifier: +, -, ~, ?
}

// Lookup fetches and parses the SPF record for domain (the first TXT
// record beginning with "v=spf1").
func Lookup(ctx context.Context, resolver Resolver, domain string) (*Record, error) {
	chunks, err := resolver.LookupTXT(ctx, domain)
	if err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if rec, ok := Parse(chunk); ok {
			return rec, nil
		}
	}
	return nil, nil
}

// Parse tokenizes a single SPF TXT record value.
func Parse(record string) (*Record, bool) {
	trimmed := strings.TrimSpace(record)
	if !strings.HasPrefix(trimmed, "v=spf1") {
		return nil, false
	}
	fields := strings.Fields(trimmed)
	rec := &Record{Raw: record, Qualifier: "?"}
	if len(fields) > 1 {
		rec.Mechanisms = fields[1:]
	}
	for _, m := range rec.Mechanisms {
		if strings.HasSuffix(m, "all") {
			switch m[0] {
			case '+', '-', '~', '?':
				rec.Qualifier = string(m[0])
			default:
				rec.Qualifier = "+"
			}
		}
	}
	return rec, true
}
