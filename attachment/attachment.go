// Package attachment applies metadata-only risk heuristics over an
// attachment's filename, MIME type, and size. Attachment content is
// never inspected.
package attachment

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/oonrumail/emailguard/model"
)

// MaxSize is the upper size bound before an attachment is flagged.
const MaxSize = 25 * 1024 * 1024

// MaxFilenameLength flags unusually long filenames, often used to hide
// the true extension off-screen in mail clients.
const MaxFilenameLength = 150

var executableExtensions = map[string]bool{
	"exe": true, "scr": true, "bat": true, "cmd": true, "com": true,
	"pif": true, "vbs": true, "vbe": true, "js": true, "jse": true,
	"wsf": true, "wsh": true, "msi": true, "msp": true, "ps1": true,
	"jar": true, "hta": true, "reg": true, "lnk": true, "gadget": true,
	"cpl": true, "dll": true,
}

var macroOfficeExtensions = map[string]bool{
	"docm": true, "xlsm": true, "pptm": true, "dotm": true, "xltm": true,
	"potm": true, "xlam": true, "ppam": true, "ppsm": true,
}

var archiveExtensions = map[string]bool{
	"zip": true, "rar": true, "7z": true, "tar": true, "gz": true,
	"bz2": true, "iso": true, "cab": true, "ace": true,
}

var executableMIMETypes = map[string]bool{
	"application/x-msdownload":      true,
	"application/x-msdos-program":   true,
	"application/x-executable":      true,
	"application/vnd.microsoft.portable-executable": true,
	"application/x-dosexec":         true,
}

// mimeExtensionPairs is an intentionally non-exhaustive MIME→expected
// extension mapping. application/octet-stream is never checked against
// it, since it is the generic/unknown type.
var mimeExtensionPairs = map[string][]string{
	"application/pdf":          {"pdf"},
	"image/jpeg":               {"jpg", "jpeg"},
	"image/png":                {"png"},
	"image/gif":                {"gif"},
	"application/zip":          {"zip"},
	"application/msword":       {"doc", "dot"},
	"text/plain":               {"txt"},
	"application/vnd.ms-excel": {"xls", "xlt"},
}

// malwareNamePatterns are filename substrings historically associated
// with mass-mailed malware campaigns; only meaningful when combined with
// a risky extension.
var malwareNamePatterns = []string{
	"invoice", "receipt", "statement", "payment", "remittance",
	"shipping_label", "scan", "fax", "voicemail", "document",
}

// rtlControlRunes are the Unicode bidi-override control characters used
// to disguise a real extension as a harmless one (e.g. "exe.cod‮cod.pdf").
var rtlControlRunes = []rune{'‮', '⁦', '⁧', '⁨', '⁩'}

// Analyze evaluates every attachment in req against the metadata risk
// catalog, returning results sorted dangerous→suspicious→safe.
func Analyze(req *model.AnalysisRequest) model.AttachmentAnalysisResult {
	results := make([]model.AttachmentResult, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		results = append(results, evaluate(a))
	}
	sortByRisk(results)

	highest := model.RiskNone
	if len(results) > 0 {
		highest = results[0].Risk
	}
	return model.AttachmentAnalysisResult{Attachments: results, HighestRisk: highest}
}

func evaluate(a model.Attachment) model.AttachmentResult {
	result := model.AttachmentResult{Filename: a.Filename, Risk: model.RiskNone}

	raise := func(r model.RiskLevel, issue string) {
		result.Issues = append(result.Issues, issue)
		if rank(r) > rank(result.Risk) {
			result.Risk = r
		}
	}

	ext := extOf(a.Filename)
	dotCount := strings.Count(a.Filename, ".")

	if executableExtensions[ext] {
		raise(model.RiskDangerous, "executable attachment")
	}
	if macroOfficeExtensions[ext] {
		raise(model.RiskSuspicious, "macro-enabled Office document")
	}
	if archiveExtensions[ext] {
		raise(model.RiskSuspicious, "archive attachment")
	}

	if executableExtensions[ext] && dotCount >= 2 {
		raise(model.RiskDangerous, "double extension hides executable payload")
	}

	if hasRTLOverride(a.Filename) {
		raise(model.RiskDangerous, "filename contains right-to-left override characters")
	}

	if a.MIMEType != "" && a.MIMEType != "application/octet-stream" {
		if executableMIMETypes[a.MIMEType] {
			raise(model.RiskDangerous, "executable MIME type")
		}
		if expected, ok := mimeExtensionPairs[a.MIMEType]; ok && ext != "" {
			if !contains(expected, ext) {
				raise(model.RiskSuspicious, "MIME type does not match extension")
			}
		}
	}

	if len(a.Filename) > MaxFilenameLength {
		raise(model.RiskSuspicious, "filename exceeds "+strconv.Itoa(MaxFilenameLength)+" characters")
	}

	if hasUncommonScript(a.Filename) {
		raise(model.RiskSuspicious, "filename uses non-Latin, non-CJK script")
	}

	if hasMalwareNamePattern(a.Filename) && (executableExtensions[ext] || macroOfficeExtensions[ext]) {
		raise(model.RiskSuspicious, "generic lure filename paired with risky extension")
	}

	if a.Size == 0 {
		raise(model.RiskSuspicious, "zero-byte attachment")
	} else if a.Size > MaxSize {
		raise(model.RiskSuspicious, "attachment exceeds size limit")
	}

	return result
}

func extOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx == -1 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func hasRTLOverride(filename string) bool {
	for _, r := range filename {
		for _, ctl := range rtlControlRunes {
			if r == ctl {
				return true
			}
		}
	}
	return false
}

func hasUncommonScript(filename string) bool {
	for _, r := range filename {
		if r < 128 {
			continue
		}
		if unicode.Is(unicode.Latin, r) ||
			unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			continue
		}
		return true
	}
	return false
}

func hasMalwareNamePattern(filename string) bool {
	lower := strings.ToLower(filename)
	for _, p := range malwareNamePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func rank(r model.RiskLevel) int {
	switch r {
	case model.RiskDangerous:
		return 2
	case model.RiskSuspicious:
		return 1
	default:
		return 0
	}
}

func sortByRisk(results []model.AttachmentResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && rank(results[j].Risk) > rank(results[j-1].Risk); j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
