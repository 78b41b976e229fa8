package bec

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func names(indicators []model.BECIndicator) []string {
	var out []string
	for _, i := range indicators {
		out = append(out, i.Name)
	}
	return out
}

func TestAnalyze_CleanEmail(t *testing.T) {
	req := &model.AnalysisRequest{Subject: "lunch tomorrow?", Text: "want to grab lunch at noon?"}
	r := Analyze(req)
	require.Empty(t, r.Indicators)
}

func TestAnalyze_JapaneseBECCombo(t *testing.T) {
	req := &model.AnalysisRequest{
		Subject: "【至急】振込先変更のお願い",
		Text:    "他の誰にも言わないでください",
	}
	r := Analyze(req)
	got := names(r.Indicators)
	require.Contains(t, got, "送金要求")
	require.Contains(t, got, "口止め")
	require.Contains(t, got, "緊急性の強調")
	require.Contains(t, got, "financial+secrecy combo")

	// High-severity indicators sort before medium.
	require.Equal(t, model.BECHigh, r.Indicators[0].Severity)
}

func TestAnalyze_CredentialRequest(t *testing.T) {
	req := &model.AnalysisRequest{Text: "please enter your password to continue"}
	r := Analyze(req)
	require.Contains(t, names(r.Indicators), "credential request")
}

func TestAnalyze_HTMLStripped(t *testing.T) {
	req := &model.AnalysisRequest{HTML: "<p>Immediate action required</p>"}
	r := Analyze(req)
	require.Contains(t, names(r.Indicators), "urgent action required")
}
