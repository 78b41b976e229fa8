// Package link extracts URLs from a message's HTML and plain-text
// bodies and evaluates each against a catalog of phishing risk checks.
package link

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/oonrumail/emailguard/confusables"
	"github.com/oonrumail/emailguard/model"
)

var shortenerHosts = map[string]bool{
	"bit.ly": true, "tinyurl.com": true, "t.co": true, "goo.gl": true,
	"ow.ly": true, "is.gd": true, "buff.ly": true, "rebrand.ly": true,
	"cutt.ly": true, "shorturl.at": true,
}

var suspiciousTLDs = []string{".tk", ".xyz", ".top", ".gq", ".ml", ".cf", ".work", ".click", ".loan", ".men"}

var credentialPaths = []string{"/login", "/verify", "/reset", "/update", "/signin", "/account/confirm"}

// trustedTLDs are TLDs exempt from the credential-bait-path heuristic.
var trustedTLDs = map[string]bool{"gov": true, "edu": true}

// allowedHostsForBrand restricts a brand name appearing in display text to
// its legitimate hosting domains.
var allowedHostsForBrand = map[string][]string{
	"paypal":    {"paypal.com"},
	"microsoft": {"microsoft.com", "office.com", "office365.com", "live.com"},
	"google":    {"google.com", "gmail.com", "accounts.google.com"},
	"apple":     {"apple.com", "icloud.com"},
	"amazon":    {"amazon.com"},
	"docusign":  {"docusign.com", "docusign.net"},
}

var plainTextURLPattern = regexp.MustCompile(`https?://[^\s<>"']+|\b(?:data|javascript):[^\s<>"']+`)

// Analyze extracts URLs from the email's HTML and plaintext bodies and
// evaluates each against the risk-check catalog.
func Analyze(req *model.AnalysisRequest) model.LinkAnalysisResult {
	type extracted struct {
		url, display string
	}

	seen := make(map[string]bool)
	var urls []extracted

	for href, text := range extractFromHTML(req.HTML) {
		if !seen[href] {
			seen[href] = true
			urls = append(urls, extracted{href, text})
		}
	}
	for _, u := range extractFromText(req.Text) {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, extracted{u, ""})
		}
	}

	results := make([]model.LinkResult, 0, len(urls))
	for _, e := range urls {
		results = append(results, evaluate(e.url, e.display))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return riskRank(results[i].Risk) > riskRank(results[j].Risk)
	})

	highest := model.RiskNone
	if len(results) > 0 {
		highest = results[0].Risk
	}

	return model.LinkAnalysisResult{Links: results, HighestRisk: highest}
}

func riskRank(r model.RiskLevel) int {
	switch r {
	case model.RiskDangerous:
		return 2
	case model.RiskSuspicious:
		return 1
	default:
		return 0
	}
}

func extractFromHTML(htmlBody string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(htmlBody) == "" {
		return out
	}
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return out
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			var href string
			for _, a := range n.Attr {
				if a.Key == "href" {
					href = a.Val
				}
			}
			if href != "" {
				out[href] = innerText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out
}

func innerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func extractFromText(text string) []string {
	return plainTextURLPattern.FindAllString(text, -1)
}

// decodePercent iteratively percent-decodes s, capped at 4 rounds to
// prevent decode loops on maliciously nested encodings.
func decodePercent(s string) string {
	for i := 0; i < 4; i++ {
		decoded, err := url.QueryUnescape(s)
		if err != nil || decoded == s {
			return s
		}
		s = decoded
	}
	return s
}

func evaluate(rawURL, displayText string) model.LinkResult {
	result := model.LinkResult{URL: rawURL, DisplayText: displayText, Risk: model.RiskNone}

	decoded := decodePercent(rawURL)
	parsed, err := url.Parse(decoded)
	if err == nil && parsed.Host == "" {
		switch strings.ToLower(parsed.Scheme) {
		case "data", "javascript":
			result.Risk = model.RiskDangerous
			result.Issues = append(result.Issues, "dangerous URL scheme")
			return result
		}
	}
	if err != nil || parsed.Host == "" {
		result.Risk = model.RiskSuspicious
		result.Issues = append(result.Issues, "unparsable URL")
		return result
	}

	host := strings.ToLower(parsed.Hostname())
	result.Host = host

	raise := func(r model.RiskLevel, issue string) {
		result.Issues = append(result.Issues, issue)
		if riskRank(r) > riskRank(result.Risk) {
			result.Risk = r
		}
	}

	if shortenerHosts[host] {
		raise(model.RiskSuspicious, "known URL shortener")
	}

	for _, tld := range suspiciousTLDs {
		if strings.HasSuffix(host, tld) {
			raise(model.RiskSuspicious, "suspicious TLD")
			break
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if ip.IsPrivate() || ip.IsLoopback() {
			raise(model.RiskDangerous, "IP-literal host in private range")
		} else {
			raise(model.RiskSuspicious, "IP-literal host")
		}
	}

	if strings.Count(host, ".") > 5 {
		raise(model.RiskSuspicious, "excessive subdomains")
	}

	if port := parsed.Port(); port != "" {
		switch port {
		case "80", "443", "8080", "8443":
		default:
			raise(model.RiskSuspicious, "non-standard port")
		}
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "http":
		raise(model.RiskSuspicious, "non-HTTPS scheme")
	case "data", "javascript":
		raise(model.RiskDangerous, "dangerous URL scheme")
	}

	domainResult := confusables.Analyze(host)
	switch domainResult.Risk {
	case model.RiskHigh:
		raise(model.RiskDangerous, "confusable host: "+strings.Join(domainResult.Techniques, ", "))
	case model.RiskMedium, model.RiskLow:
		raise(model.RiskSuspicious, "confusable host: "+strings.Join(domainResult.Techniques, ", "))
	}

	if displayText != "" {
		if displayParsed, ok := parseDisplayURL(displayText); ok {
			if !strings.EqualFold(displayParsed, host) {
				raise(model.RiskDangerous, "display URL ("+displayParsed+") and actual URL ("+host+") differ")
			}
		}
		for brand, hosts := range allowedHostsForBrand {
			if !strings.Contains(strings.ToLower(displayText), brand) {
				continue
			}
			allowed := false
			for _, h := range hosts {
				if host == h || strings.HasSuffix(host, "."+h) {
					allowed = true
					break
				}
			}
			if !allowed {
				raise(model.RiskDangerous, "brand name in display text does not match link host")
			}
		}
	}

	if !trustedTLDs[lastLabel(host)] {
		lowerPath := strings.ToLower(parsed.Path)
		for _, p := range credentialPaths {
			if strings.Contains(lowerPath, p) {
				raise(model.RiskSuspicious, "credential-bait path")
				break
			}
		}
	}

	return result
}

func parseDisplayURL(text string) (host string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, ".") {
		return "", false
	}
	candidate := text
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

func lastLabel(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) == 0 {
		return host
	}
	return parts[len(parts)-1]
}
