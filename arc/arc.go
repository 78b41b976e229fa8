// Package arc verifies RFC 8617 ARC chains: per-instance set collection,
// chain-validation coherence, and seal signature verification against the
// same DNS/RSA machinery as the dkim package.
package arc

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/oonrumail/emailguard/model"
)

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Resolver is the DNS capability arc depends on.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

type set struct {
	instance int
	seal     map[string]string
	msgSig   map[string]string
	authRes  map[string]string

	sealRaw    string
	msgSigRaw  string
	authResRaw string
}

// Verify checks the ARC chain per RFC 8617.
func Verify(ctx context.Context, req *model.AnalysisRequest, resolver Resolver) *model.ARCResult {
	sets, err := collectSets(req)
	if err != nil {
		return &model.ARCResult{Status: model.ARCFail, Issues: []string{err.Error()}}
	}
	if len(sets) == 0 {
		return &model.ARCResult{Status: model.ARCNone}
	}

	result := &model.ARCResult{Status: model.ARCPass}
	var issues []string
	chainFailed := false
	sawFail := false

	for _, s := range sets {
		setResult := model.ARCSetResult{
			Instance:        s.instance,
			ChainValidation: s.seal["cv"],
			Domain:          s.seal["d"],
			Selector:        s.seal["s"],
		}

		if s.msgSig == nil || s.authRes == nil || s.seal == nil {
			issues = append(issues, fmt.Sprintf("instance %d incomplete", s.instance))
			chainFailed = true
		}

		cv := s.seal["cv"]
		if s.instance == 1 {
			if cv != "none" {
				issues = append(issues, fmt.Sprintf("instance 1 must have cv=none, got %q", cv))
				chainFailed = true
			}
		} else {
			if cv != "pass" && cv != "fail" {
				issues = append(issues, fmt.Sprintf("instance %d has invalid cv=%q", s.instance, cv))
				chainFailed = true
			}
		}
		if cv == "fail" {
			sawFail = true
		}
		if cv == "pass" && sawFail {
			issues = append(issues, "broken chain: cv=pass after earlier cv=fail")
			chainFailed = true
		}

		if s.seal["h"] != "" || s.seal["bh"] != "" {
			// RFC 8617 §4.1.3: h=/bh= are forbidden on ARC-Seal.
			issues = append(issues, fmt.Sprintf("instance %d: forbidden tag on ARC-Seal", s.instance))
			chainFailed = true
		}

		sealValid, verifyIssue := verifySeal(ctx, resolver, sets, s)
		setResult.SealValid = sealValid
		if verifyIssue != "" {
			issues = append(issues, verifyIssue)
		}

		result.Sets = append(result.Sets, setResult)
	}

	last := sets[len(sets)-1]
	lastCV := last.seal["cv"]
	if chainFailed {
		result.Status = model.ARCFail
	} else if len(sets) == 1 && lastCV == "none" {
		result.Status = model.ARCPass
	} else if lastCV == "pass" {
		result.Status = model.ARCPass
	} else {
		result.Status = model.ARCFail
	}

	result.Issues = issues
	return result
}

func verifySeal(ctx context.Context, resolver Resolver, sets []*set, s *set) (bool, string) {
	if s.seal["b"] == "" || s.seal["d"] == "" || s.seal["s"] == "" {
		return false, fmt.Sprintf("instance %d: signature verification not performed (incomplete seal)", s.instance)
	}

	name := s.seal["s"] + "._domainkey." + s.seal["d"]
	chunks, err := resolver.LookupTXT(ctx, name)
	if err != nil || len(chunks) == 0 {
		return false, fmt.Sprintf("instance %d: signature verification not performed (DNS lookup failed)", s.instance)
	}

	pubKey, ok := parseKeyRecord(strings.Join(chunks, ""))
	if !ok {
		return false, fmt.Sprintf("instance %d: signature verification not performed (key unparsable)", s.instance)
	}

	sigBytes, err := base64.StdEncoding.DecodeString(stripWS(s.seal["b"]))
	if err != nil {
		return false, fmt.Sprintf("instance %d: signature verification not performed (bad signature encoding)", s.instance)
	}

	digest := sha256Sum(sealScope(sets, s.instance))
	if err := rsa.VerifyPKCS1v15(pubKey, crypto.SHA256, digest, sigBytes); err != nil {
		return false, fmt.Sprintf("instance %d: seal signature invalid", s.instance)
	}
	return true, ""
}

// sealScope builds the data covered by the seal of the given instance,
// per RFC 8617 §5.1.1: for every set 1..instance, its AAR, AMS, and AS
// headers relaxed-canonicalized in that order, CRLF-separated, with the
// b= value of the final seal emptied and no trailing CRLF.
func sealScope(sets []*set, instance int) []byte {
	var lines []string
	for _, s := range sets {
		if s.instance > instance {
			break
		}
		if s.authResRaw != "" {
			lines = append(lines, relaxedHeader(s.authResRaw))
		}
		if s.msgSigRaw != "" {
			lines = append(lines, relaxedHeader(s.msgSigRaw))
		}
		sealRaw := s.sealRaw
		if s.instance == instance {
			sealRaw = emptyBTag(sealRaw)
		}
		if sealRaw != "" {
			lines = append(lines, relaxedHeader(sealRaw))
		}
	}
	return []byte(strings.Join(lines, "\r\n"))
}

// relaxedHeader applies RFC 6376 §3.4.2 relaxed header canonicalization
// to a "Name:value" line.
func relaxedHeader(line string) string {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return line
	}
	value = strings.NewReplacer("\r\n", "", "\n", "").Replace(value)
	value = wspRun.ReplaceAllString(value, " ")
	return strings.ToLower(strings.TrimSpace(name)) + ":" + strings.TrimSpace(value)
}

var wspRun = regexp.MustCompile(`[ \t]+`)

// emptyBTag strips the b= tag's value while keeping the tag itself.
func emptyBTag(line string) string {
	return bTag.ReplaceAllString(line, "${1}b=")
}

var bTag = regexp.MustCompile(`(?s)(;\s*)b=[^;]*`)

func parseKeyRecord(record string) (*rsa.PublicKey, bool) {
	var p string
	for _, field := range strings.Split(record, ";") {
		field = strings.TrimSpace(field)
		k, v, ok := strings.Cut(field, "=")
		if ok && strings.TrimSpace(k) == "p" {
			p = strings.TrimSpace(v)
		}
	}
	if p == "" {
		return nil, false
	}
	der, err := base64.StdEncoding.DecodeString(p)
	if err != nil {
		return nil, false
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := pub.(*rsa.PublicKey); ok {
			return rsaKey, true
		}
	}
	if rsaKey, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return rsaKey, true
	}
	return nil, false
}

func stripWS(s string) string {
	return strings.NewReplacer(" ", "", "\t", "", "\r", "", "\n", "").Replace(s)
}

func collectSets(req *model.AnalysisRequest) ([]*set, error) {
	byInstance := make(map[int]*set)

	for _, h := range req.Headers {
		name := strings.ToLower(h.Name)
		switch name {
		case "arc-seal", "arc-message-signature", "arc-authentication-results":
			tags, err := parseARCParams(h.Value)
			if err != nil {
				continue
			}
			i, err := strconv.Atoi(tags["i"])
			if err != nil {
				continue
			}
			s, ok := byInstance[i]
			if !ok {
				s = &set{instance: i}
				byInstance[i] = s
			}
			switch name {
			case "arc-seal":
				s.seal = tags
				s.sealRaw = h.Name + ":" + h.Value
			case "arc-message-signature":
				s.msgSig = tags
				s.msgSigRaw = h.Name + ":" + h.Value
			case "arc-authentication-results":
				s.authRes = tags
				s.authResRaw = h.Name + ":" + h.Value
			}
		}
	}

	var instances []int
	for i := range byInstance {
		instances = append(instances, i)
	}
	sort.Ints(instances)
	for idx, i := range instances {
		if i != idx+1 {
			return nil, fmt.Errorf("ARC instances not contiguous starting at 1")
		}
	}

	sets := make([]*set, 0, len(instances))
	for _, i := range instances {
		sets = append(sets, byInstance[i])
	}
	return sets, nil
}

func parseARCParams(value string) (map[string]string, error) {
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
		tags[strings.TrimSpace(k)] = stripWS(v)
	}
	if tags["i"] == "" {
		return nil, fmt.Errorf("missing instance tag")
	}
	return tags, nil
}
