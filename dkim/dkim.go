// Package dkim verifies RFC 6376 DKIM signatures: tag parsing, header and
// body canonicalization, DNS public-key retrieval, and PKCS#1v1.5
// signature verification.
package dkim

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"github.com/oonrumail/emailguard/model"
)

// Resolver is the DNS capability dkim depends on; resolver.Resolver
// satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

const headerName = "dkim-signature"

// Verify checks the first DKIM-Signature header in req against RFC 6376.
func Verify(ctx context.Context, req *model.AnalysisRequest, resolver Resolver) *model.DKIMResult {
	raw, ok := firstHeader(req, headerName)
	if !ok {
		return &model.DKIMResult{Status: model.DKIMNone}
	}

	result := &model.DKIMResult{}
	tags, err := parseTags(raw)
	if err != nil {
		result.Status = model.DKIMPermError
		result.Issues = append(result.Issues, err.Error())
		return result
	}

	for _, required := range []string{"v", "a", "b", "bh", "d", "h", "s"} {
		if tags[required] == "" {
			result.Status = model.DKIMPermError
			result.Issues = append(result.Issues, "missing required tag: "+required)
			return result
		}
	}

	result.Domain = tags["d"]
	result.Selector = tags["s"]
	result.Algorithm = tags["a"]

	keyAlgo, hashAlgo, err := resolveAlgorithm(tags["a"])
	if err != nil {
		result.Status = model.DKIMTempError
		result.Issues = append(result.Issues, err.Error())
		return result
	}
	if tags["a"] == "rsa-sha1" {
		result.Issues = append(result.Issues, "weak hash: rsa-sha1")
	}

	headerCanon, bodyCanon := "simple", "simple"
	if c := tags["c"]; c != "" {
		parts := strings.SplitN(c, "/", 2)
		headerCanon = parts[0]
		if len(parts) > 1 {
			bodyCanon = parts[1]
		} else {
			bodyCanon = "simple"
		}
	}

	if tags["x"] != "" {
		if exp, err := parseUnixSeconds(tags["x"]); err == nil && time.Now().After(exp) {
			result.Status = model.DKIMFail
			result.Issues = append(result.Issues, "signature expired")
			return result
		}
	}

	canonBody := canonicalizeBody(req.Body, bodyCanon)
	if l := tags["l"]; l != "" {
		if n, err := parseNonNegativeInt(l); err == nil && n < len(canonBody) {
			canonBody = canonBody[:n]
		}
	}

	bodyHash := hashBytes(hashAlgo, canonBody)
	expectedBH := stripWhitespace(tags["bh"])
	result.BodyHashValid = base64.StdEncoding.EncodeToString(bodyHash) == expectedBH
	if !result.BodyHashValid {
		result.Issues = append(result.Issues, "body hash mismatch")
	}

	pubKey, record, err := fetchPublicKey(ctx, resolver, tags["s"], tags["d"])
	if err != nil {
		if _, temp := err.(tempError); temp {
			result.Status = model.DKIMTempError
		} else {
			result.Status = model.DKIMPermError
		}
		result.Issues = append(result.Issues, err.Error())
		return result
	}
	if record.Revoked {
		result.Status = model.DKIMPermError
		result.Issues = append(result.Issues, "key revoked")
		return result
	}
	result.KeySize = pubKey.N.BitLen()

	signedHeaders := strings.Split(tags["h"], ":")
	headerData := buildSignedHeaderData(req, signedHeaders, headerCanon)
	headerData = append(headerData, buildDKIMHeaderForVerification(raw, headerCanon)...)

	sigBytes, err := base64.StdEncoding.DecodeString(stripWhitespace(tags["b"]))
	if err != nil {
		result.Status = model.DKIMPermError
		result.Issues = append(result.Issues, "invalid signature encoding")
		return result
	}

	digest := hashBytes(hashAlgo, headerData)
	if err := rsa.VerifyPKCS1v15(pubKey, keyAlgo, digest, sigBytes); err != nil {
		result.SignatureValid = false
		result.Issues = append(result.Issues, "signature verification failed")
	} else {
		result.SignatureValid = true
	}

	if result.BodyHashValid && result.SignatureValid {
		result.Status = model.DKIMPass
	} else {
		result.Status = model.DKIMFail
	}
	return result
}

func resolveAlgorithm(a string) (crypto.Hash, crypto.Hash, error) {
	switch a {
	case "rsa-sha256":
		return crypto.SHA256, crypto.SHA256, nil
	case "rsa-sha1":
		return crypto.SHA1, crypto.SHA1, nil
	case "ed25519-sha256":
		return 0, 0, fmt.Errorf("algorithm not supported: ed25519-sha256")
	default:
		return 0, 0, fmt.Errorf("unsupported algorithm: %s", a)
	}
}

func hashBytes(h crypto.Hash, data []byte) []byte {
	switch h {
	case crypto.SHA1:
		sum := sha1.Sum(data)
		return sum[:]
	default:
		sum := sha256.Sum256(data)
		return sum[:]
	}
}

// parseTags splits a "tag=value; tag=value" DKIM-Signature body, stripping
// internal whitespace from every value (required for folded b=/bh=).
func parseTags(header string) (map[string]string, error) {
	_, value, ok := strings.Cut(header, ":")
	if !ok {
		return nil, fmt.Errorf("malformed header")
	}
	tags := make(map[string]string)
	for _, field := range strings.Split(value, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		tags[strings.TrimSpace(k)] = stripWhitespace(v)
	}
	return tags, nil
}

func stripWhitespace(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseUnixSeconds(s string) (time.Time, error) {
	var sec int64
	if _, err := fmt.Sscanf(s, "%d", &sec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0), nil
}

func parseNonNegativeInt(s string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil || n < 0 {
		return 0, fmt.Errorf("invalid integer: %s", s)
	}
	return n, nil
}

func firstHeader(req *model.AnalysisRequest, name string) (string, bool) {
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Name + ":" + h.Value, true
		}
	}
	return "", false
}

// PublicKeyRecord is the parsed DKIM DNS TXT record.
type PublicKeyRecord struct {
	Key     string
	KeyType string
	Revoked bool
}

type tempError struct{ error }

func fetchPublicKey(ctx context.Context, resolver Resolver, selector, domain string) (*rsa.PublicKey, *PublicKeyRecord, error) {
	name := selector + "._domainkey." + domain
	chunks, err := resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, nil, tempError{fmt.Errorf("dns lookup failed for %s: %w", name, err)}
	}
	if len(chunks) == 0 {
		return nil, nil, tempError{fmt.Errorf("no DKIM record found at %s", name)}
	}
	record, err := parseDKIMRecord(strings.Join(chunks, ""))
	if err != nil {
		return nil, nil, err
	}
	if record.Revoked {
		return nil, record, nil
	}
	pubKey, err := parsePublicKey(record.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid public key: %w", err)
	}
	return pubKey, record, nil
}

func parseDKIMRecord(record string) (*PublicKeyRecord, error) {
	out := &PublicKeyRecord{KeyType: "rsa"}
	for _, field := range strings.Split(record, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "p":
			out.Key = strings.TrimSpace(v)
		case "k":
			out.KeyType = strings.TrimSpace(v)
		}
	}
	if out.Key == "" {
		out.Revoked = true
	}
	return out, nil
}

func parsePublicKey(keyData string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(keyData)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	if block, _ := pem.Decode(der); block != nil {
		der = block.Bytes
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := pub.(*rsa.PublicKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("not an RSA public key")
	}
	if rsaKey, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return rsaKey, nil
	}
	return nil, fmt.Errorf("unparsable public key")
}

func buildDKIMHeaderForVerification(raw, canon string) []byte {
	name, value, _ := strings.Cut(raw, ":")
	// Empty the b= tag value but keep the tag present, per RFC 6376 §3.5.
	re := bTagPattern
	stripped := re.ReplaceAllString(value, "${1}b=")
	header := name + ":" + stripped
	return []byte(canonicalizeHeaderValue(header, canon))
}
