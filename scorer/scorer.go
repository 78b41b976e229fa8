// Package scorer merges the eight per-factor results into a single
// 0-100 score, letter grade, and verdict.
package scorer

import (
	"strings"

	"github.com/oonrumail/emailguard/model"
)

// Per-factor maximum point contributions; they sum to 100.
const (
	maxAuthentication = 25
	maxDKIM           = 15
	maxDomain         = 15
	maxLinks          = 15
	maxAttachments    = 10
	maxBEC            = 10
	maxTLS            = 5
	maxHeaderCheck    = 5
)

// Deduction constants.
const (
	authMechanismPenalty = 8

	dkimSHA1Penalty    = 5
	dkimWeakKeyPenalty = 3
	dkimWeakKeyBits    = 2048

	domainHighPenalty   = 20
	domainMediumPenalty = 15
	domainLowPenalty    = 10
	domainIDNPenalty    = 5

	linkDangerousPenalty  = 8
	linkDangerousCap      = 15
	linkSuspiciousPenalty = 3
	linkSuspiciousCap     = 10

	attachmentDangerousPenalty = 10
	attachmentWarningPenalty   = 5

	becHighPenalty   = 5
	becHighCap       = 10
	becMediumPenalty = 2
	becMediumCap     = 5

	tlsWarningPenalty = 3

	headerMismatchPenalty = 2
	headerDatePenalty     = 1
)

// Score combines every factor in result into a SecurityScore.
// req.AuthResults supplies the SPF and DMARC outcomes for the
// Authentication factor; its DKIM part comes from result.DKIM.
func Score(req *model.AnalysisRequest, result *model.AnalysisResult) model.SecurityScore {
	var reasons []string
	total := 0

	total += scoreAuthentication(req, result, &reasons)
	total += scoreDKIM(result.DKIM, &reasons)
	total += scoreDomain(result.Domain, &reasons)
	total += scoreLinks(result.Links, &reasons)
	total += scoreAttachments(result.Attachments, &reasons)
	total += scoreBEC(result.BEC, &reasons)
	total += scoreTLS(result.TLSPath, &reasons)
	total += scoreHeaderCheck(result.HeaderConsistency, &reasons)

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	grade := gradeFor(total)
	verdict := verdictFor(total, result)

	return model.SecurityScore{Score: total, Grade: grade, Verdict: verdict, Reasons: reasons}
}

func scoreAuthentication(req *model.AnalysisRequest, result *model.AnalysisResult, reasons *[]string) int {
	points := maxAuthentication
	for _, mech := range []string{"spf", "dmarc"} {
		if outcome, ok := req.AuthResults[mech]; !ok || outcome != "pass" {
			points -= authMechanismPenalty
			*reasons = append(*reasons, mech+" did not pass")
		}
	}
	dkimPassed := result.DKIM != nil && result.DKIM.Status == model.DKIMPass
	if !dkimPassed {
		points -= authMechanismPenalty
		*reasons = append(*reasons, "dkim did not pass")
	}
	return clampNonNegative(points)
}

func scoreDKIM(dkim *model.DKIMResult, reasons *[]string) int {
	if dkim == nil || dkim.Status != model.DKIMPass {
		return 0
	}
	points := maxDKIM
	if dkim.Algorithm == "rsa-sha1" {
		points -= dkimSHA1Penalty
		*reasons = append(*reasons, "dkim uses sha1")
	}
	if dkim.KeySize > 0 && dkim.KeySize < dkimWeakKeyBits {
		points -= dkimWeakKeyPenalty
		*reasons = append(*reasons, "dkim key size below 2048 bits")
	}
	return clampNonNegative(points)
}

func scoreDomain(domain model.DomainResult, reasons *[]string) int {
	points := maxDomain
	switch domain.Risk {
	case model.RiskHigh, model.RiskDangerous:
		points -= domainHighPenalty
		*reasons = append(*reasons, "domain risk: high")
	case model.RiskMedium:
		points -= domainMediumPenalty
		*reasons = append(*reasons, "domain risk: medium")
	case model.RiskLow, model.RiskSuspicious:
		points -= domainLowPenalty
		*reasons = append(*reasons, "domain risk: low")
	}
	if domain.IsIDN && len(domain.Replacements) > 0 {
		points -= domainIDNPenalty
		*reasons = append(*reasons, "IDN domain mixes scripts")
	}
	return clampNonNegative(points)
}

func scoreLinks(links model.LinkAnalysisResult, reasons *[]string) int {
	dangerous, suspicious := 0, 0
	for _, l := range links.Links {
		switch l.Risk {
		case model.RiskDangerous:
			dangerous++
		case model.RiskSuspicious:
			suspicious++
		}
	}
	deduction := capped(dangerous*linkDangerousPenalty, linkDangerousCap) +
		capped(suspicious*linkSuspiciousPenalty, linkSuspiciousCap)
	if dangerous > 0 {
		*reasons = append(*reasons, "dangerous links present")
	} else if suspicious > 0 {
		*reasons = append(*reasons, "suspicious links present")
	}
	return clampNonNegative(maxLinks - deduction)
}

func scoreAttachments(attachments model.AttachmentAnalysisResult, reasons *[]string) int {
	deduction := 0
	for _, a := range attachments.Attachments {
		switch a.Risk {
		case model.RiskDangerous:
			deduction += attachmentDangerousPenalty
		case model.RiskSuspicious, model.RiskWarning:
			deduction += attachmentWarningPenalty
		}
	}
	if deduction > maxAttachments {
		deduction = maxAttachments
	}
	if deduction > 0 {
		*reasons = append(*reasons, "risky attachments present")
	}
	return clampNonNegative(maxAttachments - deduction)
}

func scoreBEC(bec model.BECResult, reasons *[]string) int {
	high, medium := 0, 0
	for _, i := range bec.Indicators {
		switch i.Severity {
		case model.BECHigh:
			high++
		case model.BECMedium:
			medium++
		}
	}
	deduction := capped(high*becHighPenalty, becHighCap) + capped(medium*becMediumPenalty, becMediumCap)
	if high > 0 {
		*reasons = append(*reasons, "high-severity BEC indicators present")
	}
	return clampNonNegative(maxBEC - deduction)
}

func scoreTLS(tls model.TLSPathResult, reasons *[]string) int {
	switch tls.Risk {
	case model.RiskDanger:
		*reasons = append(*reasons, "unencrypted delivery path")
		return 0
	case model.RiskWarning:
		*reasons = append(*reasons, "partially unencrypted delivery path")
		return clampNonNegative(maxTLS - tlsWarningPenalty)
	default:
		return maxTLS
	}
}

func scoreHeaderCheck(hc model.HeaderConsistencyResult, reasons *[]string) int {
	points := maxHeaderCheck
	for _, issue := range hc.Issues {
		switch {
		case strings.Contains(issue, "Return-Path") || strings.Contains(issue, "Reply-To"):
			points -= headerMismatchPenalty
		case strings.Contains(issue, "Date"):
			points -= headerDatePenalty
		}
	}
	if points < maxHeaderCheck {
		*reasons = append(*reasons, "header consistency issues present")
	}
	return clampNonNegative(points)
}

func gradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

func verdictFor(score int, result *model.AnalysisResult) string {
	hasDangerousLink := result.Links.HighestRisk == model.RiskDangerous
	hasDangerousAttachment := result.Attachments.HighestRisk == model.RiskDangerous
	hasHighBEC := false
	for _, i := range result.BEC.Indicators {
		if i.Severity == model.BECHigh {
			hasHighBEC = true
			break
		}
	}

	if hasDangerousLink || hasDangerousAttachment || (score < 60 && hasHighBEC) {
		return "danger"
	}
	switch {
	case score >= 90:
		return "safe"
	case score >= 75:
		return "caution"
	case score >= 50:
		return "warning"
	default:
		return "danger"
	}
}

func clampNonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func capped(n, max int) int {
	if n > max {
		return max
	}
	return n
}

