// Package model holds the request/result types shared by every factor,
// the orchestrator, and the HTTP layer.
package model

// EmailHeader is one logical header line with folding already resolved.
type EmailHeader struct {
	Name  string
	Value string
}

// Attachment carries only the metadata needed for heuristic risk checks;
// attachment content is never inspected (see attachment package).
type Attachment struct {
	Filename string
	MIMEType string
	Size     int64
}

// AnalysisRequest is the immutable input to a single analysis run.
type AnalysisRequest struct {
	Headers     []EmailHeader
	RawHeaders  string
	Body        []byte
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment

	// AuthResults is a precomputed map of already-known authentication
	// results (e.g. forwarded Authentication-Results), keyed by mechanism
	// name ("spf", "dkim", "dmarc") lowercase.
	AuthResults map[string]string
}

// Header returns the value of the last header matching name, per RFC 6376
// §5.4.2 "last matching header" semantics, case-insensitively.
func (r *AnalysisRequest) Header(name string) (string, bool) {
	var found string
	var ok bool
	for _, h := range r.Headers {
		if equalFold(h.Name, name) {
			found = h.Value
			ok = true
		}
	}
	return found, ok
}

// HeaderValues returns every header with the given name, in message order.
func (r *AnalysisRequest) HeaderValues(name string) []string {
	var out []string
	for _, h := range r.Headers {
		if equalFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
