// Package bec detects Business Email Compromise patterns: an ordered
// regex catalog over subject/text/HTML-stripped body, categorized and
// severity-scored, with composite indicators for pattern combinations.
package bec

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/oonrumail/emailguard/model"
)

type pattern struct {
	name     string
	category string
	severity model.BECSeverity
	re       *regexp.Regexp
}

// catalog is compiled once at process start; a MustCompile panic here is
// a startup-time failure, never a request-time one.
var catalog = []pattern{
	{"urgent action required", "urgency", model.BECHigh,
		regexp.MustCompile(`(?i)(immediate|urgent)\s+action\s+required`)},
	{"account suspension threat", "urgency", model.BECHigh,
		regexp.MustCompile(`(?i)your\s+account\s+(has been|will be)\s+(suspended|closed|terminated)`)},
	{"final notice", "urgency", model.BECMedium,
		regexp.MustCompile(`(?i)(final notice|last warning|final reminder)`)},
	{"緊急性の強調", "urgency", model.BECMedium,
		regexp.MustCompile(`至急|緊急`)},

	{"wire transfer request", "financial", model.BECHigh,
		regexp.MustCompile(`(?i)(wire|bank)\s+transfer|change\s+(the\s+)?(bank|payment|remittance)\s+(details|information|account)`)},
	{"invoice payment change", "financial", model.BECMedium,
		regexp.MustCompile(`(?i)updated?\s+(invoice|payment)\s+(details|instructions)`)},
	{"送金要求", "financial", model.BECHigh,
		regexp.MustCompile(`振込先変更|送金|振込依頼`)},

	{"ceo/executive authority", "authority", model.BECHigh,
		regexp.MustCompile(`(?i)(as (the )?(ceo|cfo|president)|on behalf of the (ceo|cfo|president))`)},
	{"vendor impersonation", "authority", model.BECMedium,
		regexp.MustCompile(`(?i)(this is|i am) (our|your) (new )?(vendor|supplier|accountant)`)},

	{"secrecy request", "secrecy", model.BECHigh,
		regexp.MustCompile(`(?i)(do not|don't) (discuss|tell|mention|share) this with (anyone|anybody)|keep this confidential`)},
	{"口止め", "secrecy", model.BECHigh,
		regexp.MustCompile(`他の誰にも言わないで|口外しないで|内密に`)},

	{"credential request", "credential", model.BECHigh,
		regexp.MustCompile(`(?i)enter (your )?(password|pin|ssn|social security)`)},
	{"credential confirmation", "credential", model.BECMedium,
		regexp.MustCompile(`(?i)(confirm|verify|update) your (password|login|credentials)`)},

	{"click to act", "action", model.BECMedium,
		regexp.MustCompile(`(?i)click (here|the link|below) to (verify|confirm|login|pay)`)},
	{"reply directly request", "action", model.BECLow,
		regexp.MustCompile(`(?i)(reply|respond) (directly|only) to (me|this email)`)},
}

var severityRank = map[model.BECSeverity]int{
	model.BECHigh:   2,
	model.BECMedium: 1,
	model.BECLow:    0,
}

// Analyze scans the concatenation of subject, text, and the HTML body
// (tags stripped) against the pattern catalog, deduplicating by pattern
// name and adding composite indicators.
func Analyze(req *model.AnalysisRequest) model.BECResult {
	combined := req.Subject + " " + req.Text + " " + stripHTML(req.HTML)

	var indicators []model.BECIndicator
	categories := make(map[string]int) // count of high-severity hits per category
	var hasFinancial, hasSecrecy bool

	for _, p := range catalog {
		loc := p.re.FindStringIndex(combined)
		if loc == nil {
			continue
		}
		indicators = append(indicators, model.BECIndicator{
			Name:     p.name,
			Category: p.category,
			Severity: p.severity,
			Evidence: strings.TrimSpace(combined[loc[0]:loc[1]]),
		})
		if p.severity == model.BECHigh {
			categories[p.category]++
		}
		if p.category == "financial" {
			hasFinancial = true
		}
		if p.category == "secrecy" {
			hasSecrecy = true
		}
	}

	highCount := 0
	for _, c := range categories {
		highCount += c
	}
	if highCount >= 2 {
		indicators = append(indicators, model.BECIndicator{
			Name:     "complex high-risk",
			Category: "composite",
			Severity: model.BECHigh,
		})
	}
	if hasFinancial && hasSecrecy {
		indicators = append(indicators, model.BECIndicator{
			Name:     "financial+secrecy combo",
			Category: "composite",
			Severity: model.BECHigh,
		})
	}

	sort.SliceStable(indicators, func(i, j int) bool {
		return severityRank[indicators[i].Severity] > severityRank[indicators[j].Severity]
	})

	return model.BECResult{Indicators: indicators}
}

// stripHTML reduces HTML markup to its visible text content, tolerating
// malformed input (golang.org/x/net/html is permissive like a browser
// parser).
func stripHTML(body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}
