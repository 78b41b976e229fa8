package attachment

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func analyzeOne(a model.Attachment) model.AttachmentResult {
	req := &model.AnalysisRequest{Attachments: []model.Attachment{a}}
	return Analyze(req).Attachments[0]
}

func TestAnalyze_BenignPDF(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "invoice.pdf", MIMEType: "application/pdf", Size: 1024})
	require.Equal(t, model.RiskNone, r.Risk) // malware-name lure alone doesn't raise without a risky ext
}

func TestAnalyze_CleanImage(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "photo.png", MIMEType: "image/png", Size: 2048})
	require.Equal(t, model.RiskNone, r.Risk)
}

func TestAnalyze_Executable(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "setup.exe", MIMEType: "application/x-msdownload", Size: 1024})
	require.Equal(t, model.RiskDangerous, r.Risk)
}

func TestAnalyze_DoubleExtension(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "invoice.pdf.exe", Size: 1024})
	require.Equal(t, model.RiskDangerous, r.Risk)
	require.Contains(t, r.Issues, "double extension hides executable payload")
}

func TestAnalyze_RTLOverride(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "invoice‮xcod.pdf", Size: 1024})
	require.Equal(t, model.RiskDangerous, r.Risk)
}

func TestAnalyze_MismatchedMIME(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "report.txt", MIMEType: "application/pdf", Size: 1024})
	require.Equal(t, model.RiskSuspicious, r.Risk)
}

func TestAnalyze_OctetStreamNeverMismatches(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "data.bin", MIMEType: "application/octet-stream", Size: 1024})
	require.Equal(t, model.RiskNone, r.Risk)
}

func TestAnalyze_ZeroByteAndOversize(t *testing.T) {
	r := analyzeOne(model.Attachment{Filename: "empty.txt", Size: 0})
	require.Equal(t, model.RiskSuspicious, r.Risk)

	r = analyzeOne(model.Attachment{Filename: "huge.zip", Size: MaxSize + 1})
	require.Equal(t, model.RiskSuspicious, r.Risk)
}

func TestAnalyze_SortedByRisk(t *testing.T) {
	req := &model.AnalysisRequest{Attachments: []model.Attachment{
		{Filename: "photo.png", MIMEType: "image/png", Size: 10},
		{Filename: "setup.exe", Size: 10},
		{Filename: "archive.zip", Size: 10},
	}}
	result := Analyze(req)
	require.Equal(t, model.RiskDangerous, result.HighestRisk)
	require.Equal(t, "setup.exe", result.Attachments[0].Filename)
}
