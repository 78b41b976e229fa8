// Package confusables detects homograph and confusable-character domain
// spoofing: script-aware normalization against the confusable table,
// edit-distance brand matching, and IDN/Punycode handling via
// golang.org/x/net/idna.
package confusables

import (
	"sort"
	"strings"

	"golang.org/x/net/idna"

	"github.com/oonrumail/emailguard/model"
)

// Similarity thresholds, in percent. A brand match below MinSimilarity
// is discarded entirely.
const (
	MinSimilarity = 70.0

	confusableHighSimilarity   = 90.0
	confusableMediumSimilarity = 80.0

	typosquatHighSimilarity   = 95.0
	typosquatMediumSimilarity = 85.0
)

// Analyze classifies domain against the known-brand list, detecting
// homograph substitutions, typosquatting, and IDN/Punycode disguises.
func Analyze(domain string) model.DomainResult {
	domain = strings.TrimSpace(domain)
	domain = lowerASCII(domain)
	result := model.DomainResult{Domain: domain, Risk: model.RiskNone}

	displayForm := domain
	if strings.Contains(domain, "xn--") {
		result.IsIDN = true
		result.Punycode = domain
		result.Techniques = append(result.Techniques, "IDN/punycode encoding")
		if u, err := idna.ToUnicode(domain); err == nil && u != domain {
			displayForm = u
		}
	} else if hasNonASCII(domain) {
		result.IsIDN = true
		if ace, err := idna.ToASCII(domain); err == nil {
			result.Punycode = ace
		}
	}

	normalized, replacements := normalize(displayForm)
	result.Normalized = normalized
	result.Replacements = replacements

	if len(replacements) > 0 {
		result.Techniques = append(result.Techniques, mixedScriptTechnique(displayForm, replacements))
	}

	if isKnownBrand(normalized) && len(replacements) > 0 {
		result.Risk = model.RiskHigh
		result.MatchedDomain = normalized
		result.Similarity = 100
		result.Techniques = append(result.Techniques, "homograph exact match")
		return result
	}
	if isKnownBrand(displayForm) {
		return result
	}

	for _, brand := range knownBrands {
		if isSubdomainSpoof(displayForm, brand) {
			result.Risk = model.RiskHigh
			result.MatchedDomain = brand
			result.Techniques = append(result.Techniques, "subdomain spoofing")
			return result
		}
	}

	best := matchBrand(normalized)
	if best.domain == "" || best.similarity < MinSimilarity {
		if result.Risk == model.RiskNone && len(replacements) > 0 {
			result.Risk = model.RiskLow
		}
		return result
	}

	result.MatchedDomain = best.domain
	result.Similarity = best.similarity

	if len(replacements) > 0 {
		switch {
		case best.similarity >= confusableHighSimilarity:
			result.Risk = model.RiskHigh
		case best.similarity >= confusableMediumSimilarity:
			result.Risk = model.RiskMedium
		default:
			result.Risk = model.RiskLow
		}
		result.Techniques = append(result.Techniques, "confusable characters near known brand")
	} else {
		switch {
		case best.similarity >= typosquatHighSimilarity:
			result.Risk = model.RiskHigh
			result.Techniques = append(result.Techniques, "typosquatting")
		case best.similarity >= typosquatMediumSimilarity:
			result.Risk = model.RiskMedium
			result.Techniques = append(result.Techniques, "typosquatting")
		}
	}

	if hasNumberSubstitution(displayForm, best.domain) {
		result.Risk = model.RiskHigh
		result.Techniques = append(result.Techniques, "number substitution")
	}
	if result.Risk == model.RiskNone && isWrongTLD(displayForm, best.domain) {
		result.Risk = model.RiskMedium
		result.Techniques = append(result.Techniques, "TLD substitution")
	}

	return result
}

// lowerASCII lowercases only ASCII letters, leaving non-ASCII codepoints
// untouched so the confusable table sees them as sent.
func lowerASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if 'A' <= r && r <= 'Z' {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}

// mixedScriptTechnique names every script contributing codepoints to the
// domain, e.g. "mixed-script: Cyrillic, Latin".
func mixedScriptTechnique(domain string, replacements []model.ConfusableReplacement) string {
	scripts := make(map[string]bool)
	for _, r := range replacements {
		scripts[r.Script] = true
	}
	for _, r := range domain {
		if r < 128 && (('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')) {
			scripts["Latin"] = true
			break
		}
	}
	names := make([]string, 0, len(scripts))
	for s := range scripts {
		names = append(names, s)
	}
	sort.Strings(names)
	return "mixed-script: " + strings.Join(names, ", ")
}

// normalize maps every confusable codepoint to its ASCII equivalent and
// applies the multi-character substitution table, recording each
// replacement's position, original rune, and contributing script.
func normalize(s string) (string, []model.ConfusableReplacement) {
	var b strings.Builder
	var replacements []model.ConfusableReplacement
	pos := 0
	for _, r := range s {
		if entry, ok := charMap[r]; ok {
			normalized := string(entry.ascii)
			replacements = append(replacements, model.ConfusableReplacement{
				Original:   string(r),
				Position:   pos,
				Normalized: normalized,
				Script:     entry.script,
			})
			b.WriteString(normalized)
			pos += len(normalized)
			continue
		}
		b.WriteRune(r)
		pos += len(string(r))
	}
	out := b.String()
	var mb strings.Builder
scan:
	for i := 0; i < len(out); {
		for _, sub := range multiCharSubstitutions {
			if strings.HasPrefix(out[i:], sub.from) {
				mb.WriteString(sub.to)
				i += len(sub.from)
				continue scan
			}
		}
		mb.WriteByte(out[i])
		i++
	}
	return mb.String(), replacements
}

func isKnownBrand(domain string) bool {
	for _, b := range knownBrands {
		if domain == b {
			return true
		}
	}
	return false
}

type brandMatch struct {
	domain     string
	similarity float64 // percent, 0-100
}

// matchBrand returns the known brand with the highest edit-distance
// similarity to normalized.
func matchBrand(normalized string) brandMatch {
	var best brandMatch
	for _, brand := range knownBrands {
		sim := domainSimilarity(normalized, brand)
		if sim > best.similarity {
			best = brandMatch{domain: brand, similarity: sim}
		}
	}
	return best
}

// domainSimilarity is (maxLen - dist) / maxLen * 100.
func domainSimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 100
	}
	dist := levenshteinDistance(a, b)
	return float64(maxLen-dist) / float64(maxLen) * 100
}

func levenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// hasNumberSubstitution reports whether domain looks like brand with
// digits swapped in for lookalike letters (0↔o, 1↔l, 3↔e, 5↔s, 4↔a, 7↔t).
func hasNumberSubstitution(domain, brand string) bool {
	subs := map[byte]byte{'0': 'o', '1': 'l', '3': 'e', '5': 's', '4': 'a', '7': 't'}
	var b strings.Builder
	label := registrableLabel(domain)
	for i := 0; i < len(label); i++ {
		if repl, ok := subs[label[i]]; ok {
			b.WriteByte(repl)
			continue
		}
		b.WriteByte(label[i])
	}
	substituted := b.String()
	return substituted != label && substituted == registrableLabel(brand)
}

// isSubdomainSpoof reports whether domain embeds brand as a subdomain
// label rather than the registrable domain, e.g.
// "paypal.com.verify-account.net".
func isSubdomainSpoof(domain, brand string) bool {
	if strings.HasSuffix(domain, "."+brand) {
		return false
	}
	return strings.Contains(domain, brand+".")
}

// isWrongTLD reports whether domain matches brand's registrable label but
// differs in TLD, e.g. "paypal.net" vs "paypal.com".
func isWrongTLD(domain, brand string) bool {
	return registrableLabel(domain) == registrableLabel(brand) && domain != brand
}

func registrableLabel(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) == 0 {
		return domain
	}
	return parts[0]
}
