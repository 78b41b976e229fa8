package dkim

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

type fakeResolver struct {
	txt map[string][]string
	err error
}

func (f *fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.txt[name], nil
}

// signedRequest builds a DKIM-signed AnalysisRequest for selector
// "sel"/domain "example.com" covering from/subject with the given body,
// returning the request and the fakeResolver carrying the matching key.
func signedRequest(t *testing.T, body string, headerCanon, bodyCanon, algo string) (*model.AnalysisRequest, *fakeResolver) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(der)

	req := &model.AnalysisRequest{
		Headers: []model.EmailHeader{
			{Name: "From", Value: " sender@example.com"},
			{Name: "Subject", Value: " hello"},
		},
		Body: []byte(body),
	}

	canonBody := canonicalizeBody(req.Body, bodyCanon)
	hashAlgo := crypto.SHA256
	if algo == "rsa-sha1" {
		hashAlgo = crypto.SHA1
	}
	bh := base64.StdEncoding.EncodeToString(hashBytes(hashAlgo, canonBody))

	sigTemplate := fmt.Sprintf("v=1; a=%s; c=%s/%s; d=example.com; s=sel; h=from:subject; bh=%s; b=",
		algo, headerCanon, bodyCanon, bh)
	rawHeader := "DKIM-Signature:" + sigTemplate

	headerData := buildSignedHeaderData(req, []string{"from", "subject"}, headerCanon)
	headerData = append(headerData, buildDKIMHeaderForVerification(rawHeader, headerCanon)...)

	digest := hashBytes(hashAlgo, headerData)
	sig, err := rsa.SignPKCS1v15(nil, key, hashAlgo, digest)
	require.NoError(t, err)

	req.Headers = append(req.Headers, model.EmailHeader{
		Name:  "DKIM-Signature",
		Value: " " + sigTemplate + base64.StdEncoding.EncodeToString(sig),
	})

	resolver := &fakeResolver{txt: map[string][]string{
		"sel._domainkey.example.com": {"v=DKIM1; k=rsa; p=" + pubB64},
	}}
	return req, resolver
}

func TestVerify_Pass(t *testing.T) {
	req, resolver := signedRequest(t, "test\r\n", "relaxed", "relaxed", "rsa-sha256")
	result := Verify(context.Background(), req, resolver)
	require.Equal(t, model.DKIMPass, result.Status)
	require.True(t, result.BodyHashValid)
	require.True(t, result.SignatureValid)
	require.Equal(t, "example.com", result.Domain)
	require.Equal(t, "sel", result.Selector)
}

func TestVerify_TamperedBody(t *testing.T) {
	req, resolver := signedRequest(t, "test\r\n", "relaxed", "relaxed", "rsa-sha256")
	req.Body = []byte("tesT\r\n")
	result := Verify(context.Background(), req, resolver)
	require.Equal(t, model.DKIMFail, result.Status)
	require.False(t, result.BodyHashValid)
}

func TestVerify_NoSignature(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{{Name: "From", Value: "a@b.com"}}}
	result := Verify(context.Background(), req, &fakeResolver{})
	require.Equal(t, model.DKIMNone, result.Status)
}

func TestVerify_Ed25519Unsupported(t *testing.T) {
	req := &model.AnalysisRequest{
		Headers: []model.EmailHeader{
			{Name: "DKIM-Signature", Value: " v=1; a=ed25519-sha256; c=relaxed/relaxed; d=example.com; s=sel; h=from; bh=AAAA; b=AAAA"},
		},
	}
	result := Verify(context.Background(), req, &fakeResolver{})
	require.Equal(t, model.DKIMTempError, result.Status)
}

func TestVerify_RevokedKey(t *testing.T) {
	req, resolver := signedRequest(t, "test\r\n", "relaxed", "relaxed", "rsa-sha256")
	resolver.txt["sel._domainkey.example.com"] = []string{"v=DKIM1; k=rsa; p="}
	result := Verify(context.Background(), req, resolver)
	require.Equal(t, model.DKIMPermError, result.Status)
}

func TestVerify_Sha1Weak(t *testing.T) {
	req, resolver := signedRequest(t, "test\r\n", "relaxed", "relaxed", "rsa-sha1")
	result := Verify(context.Background(), req, resolver)
	require.Equal(t, model.DKIMPass, result.Status)
	require.Contains(t, result.Issues, "weak hash: rsa-sha1")
}

func TestCanonicalizeBody_Idempotent(t *testing.T) {
	body := []byte("line one   \r\nline two\r\n\r\n\r\n")
	once := canonicalizeBodyRelaxed(body)
	twice := canonicalizeBodyRelaxed(once)
	require.Equal(t, once, twice)
}

func TestCanonicalizeBody_Deterministic(t *testing.T) {
	body := []byte("a\r\nb\r\n")
	h1 := sha256.Sum256(canonicalizeBody(body, "relaxed"))
	h2 := sha256.Sum256(canonicalizeBody(body, "relaxed"))
	require.Equal(t, h1, h2)
}
