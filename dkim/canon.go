package dkim

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/oonrumail/emailguard/model"
)

// bTagPattern matches the b= tag (and everything up to the next ; or end)
// so it can be emptied for signature verification while the tag itself is
// kept, per RFC 6376 §3.5.
var bTagPattern = regexp.MustCompile(`(?s)(^|;\s*)b=[^;]*`)

// canonicalizeBody implements RFC 6376 §3.4 body canonicalization.
func canonicalizeBody(body []byte, method string) []byte {
	normalized := normalizeNewlines(body)
	switch method {
	case "relaxed":
		return canonicalizeBodyRelaxed(normalized)
	default:
		return canonicalizeBodySimple(normalized)
	}
}

func normalizeNewlines(body []byte) []byte {
	body = bytes.ReplaceAll(body, []byte("\r\n"), []byte("\n"))
	body = bytes.ReplaceAll(body, []byte("\n"), []byte("\r\n"))
	return body
}

func canonicalizeBodySimple(body []byte) []byte {
	body = stripTrailingEmptyLines(body)
	if len(body) == 0 {
		return body
	}
	return append(body, '\r', '\n')
}

func canonicalizeBodyRelaxed(body []byte) []byte {
	lines := strings.Split(string(body), "\r\n")
	for i, line := range lines {
		line = collapseWSP(line)
		line = strings.TrimRight(line, " \t")
		lines[i] = line
	}
	out := strings.Join(lines, "\r\n")
	result := stripTrailingEmptyLines([]byte(out))
	if len(result) == 0 {
		return result
	}
	return append(result, '\r', '\n')
}

func stripTrailingEmptyLines(body []byte) []byte {
	for bytes.HasSuffix(body, []byte("\r\n")) {
		body = body[:len(body)-2]
	}
	return body
}

var wspRunPattern = regexp.MustCompile(`[ \t]+`)

func collapseWSP(s string) string {
	return wspRunPattern.ReplaceAllString(s, " ")
}

// canonicalizeHeaderValue implements RFC 6376 §3.4.1/3.4.2 for a single
// "name:value" header line.
func canonicalizeHeaderValue(headerLine, method string) string {
	name, value, ok := strings.Cut(headerLine, ":")
	if !ok {
		return headerLine
	}
	if method != "relaxed" {
		return name + ":" + value
	}
	name = strings.ToLower(strings.TrimSpace(name))
	value = unfold(value)
	value = collapseWSP(value)
	value = strings.TrimSpace(value)
	return name + ":" + value
}

func unfold(value string) string {
	value = strings.ReplaceAll(value, "\r\n", "")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

// buildSignedHeaderData builds the canonicalized header block covered by
// h=, honoring RFC 6376 §5.4.2 "last matching header" semantics: for each
// name in signedHeaders, the last header in the message with that name
// (not yet consumed) is used.
func buildSignedHeaderData(req *model.AnalysisRequest, signedHeaders []string, canon string) []byte {
	// Track how many times each header name has been consumed from the
	// end, so repeated names in h= pick successively earlier instances.
	consumed := make(map[string]int)
	var buf bytes.Buffer
	for _, name := range signedHeaders {
		lower := strings.ToLower(strings.TrimSpace(name))
		values := matchingHeaderValues(req, lower)
		skip := consumed[lower]
		consumed[lower] = skip + 1
		idx := len(values) - 1 - skip
		if idx < 0 {
			continue // signed a header that no longer exists: contributes nothing
		}
		line := values[idx].Name + ":" + values[idx].Value
		buf.WriteString(canonicalizeHeaderValue(line, canon))
		buf.WriteString("\r\n")
	}
	// Trailing CRLF is kept: the DKIM-Signature header itself is appended
	// immediately after, with no trailing CRLF of its own (RFC 6376 §3.7).
	return buf.Bytes()
}

func matchingHeaderValues(req *model.AnalysisRequest, lowerName string) []model.EmailHeader {
	var out []model.EmailHeader
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, lowerName) {
			out = append(out, h)
		}
	}
	return out
}
