package tlspath

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func req(received ...string) *model.AnalysisRequest {
	r := &model.AnalysisRequest{}
	for _, v := range received {
		r.Headers = append(r.Headers, model.EmailHeader{Name: "Received", Value: v})
	}
	return r
}

func TestAnalyze_NoReceivedHeaders(t *testing.T) {
	r := Analyze(req())
	require.Equal(t, model.RiskSafe, r.Risk)
}

func TestAnalyze_AllEncrypted(t *testing.T) {
	// Headers are message-order (most recent hop first); Analyze reverses
	// them to origin-first.
	r := Analyze(req(
		"from mx2.example.com by recipient.example.com with ESMTPS id abc; Tue, 1 Jul 2025 10:00:00 +0000",
		"from origin.example.com by mx2.example.com with ESMTPS id def; Tue, 1 Jul 2025 09:59:00 +0000",
	))
	require.Equal(t, model.RiskSafe, r.Risk)
	require.Len(t, r.Hops, 2)
	require.Equal(t, "origin.example.com", r.Hops[0].From)
	require.True(t, r.Hops[0].Encrypted)
}

func TestAnalyze_FirstHopUnencrypted(t *testing.T) {
	r := Analyze(req(
		"from mx2.example.com by recipient.example.com with ESMTPS id abc; Tue, 1 Jul 2025 10:00:00 +0000",
		"from origin.example.com by mx2.example.com with SMTP id def; Tue, 1 Jul 2025 09:59:00 +0000",
	))
	require.Equal(t, model.RiskDanger, r.Risk)
}

func TestAnalyze_DeprecatedTLSVersion(t *testing.T) {
	r := Analyze(req(
		"from origin.example.com by mx.example.com with ESMTPS (TLSv1.0) id def; Tue, 1 Jul 2025 09:59:00 +0000",
	))
	require.Contains(t, r.Issues[0], "deprecated TLS version")
}
