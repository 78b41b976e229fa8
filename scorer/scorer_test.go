package scorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func TestScore_CleanPerfectMessage(t *testing.T) {
	req := &model.AnalysisRequest{AuthResults: map[string]string{"spf": "pass", "dmarc": "pass"}}
	result := &model.AnalysisResult{
		DKIM:    &model.DKIMResult{Status: model.DKIMPass, Algorithm: "rsa-sha256", KeySize: 2048},
		TLSPath: model.TLSPathResult{Risk: model.RiskSafe},
		Domain:  model.DomainResult{Risk: model.RiskNone},
	}
	score := Score(req, result)
	require.Equal(t, 100, score.Score)
	require.Equal(t, "A", score.Grade)
	require.Equal(t, "safe", score.Verdict)
}

func TestScore_BoundsNeverNegativeOrOver100(t *testing.T) {
	req := &model.AnalysisRequest{}
	result := &model.AnalysisResult{
		Links: model.LinkAnalysisResult{
			Links:       []model.LinkResult{{Risk: model.RiskDangerous}, {Risk: model.RiskDangerous}, {Risk: model.RiskDangerous}},
			HighestRisk: model.RiskDangerous,
		},
		Attachments: model.AttachmentAnalysisResult{
			Attachments: []model.AttachmentResult{{Risk: model.RiskDangerous}, {Risk: model.RiskDangerous}},
			HighestRisk: model.RiskDangerous,
		},
		Domain:  model.DomainResult{Risk: model.RiskHigh},
		TLSPath: model.TLSPathResult{Risk: model.RiskDanger},
	}
	score := Score(req, result)
	require.GreaterOrEqual(t, score.Score, 0)
	require.LessOrEqual(t, score.Score, 100)
	require.Equal(t, "F", score.Grade)
}

func TestScore_VerdictOverride_DangerousLinkForcesDanger(t *testing.T) {
	req := &model.AnalysisRequest{AuthResults: map[string]string{"spf": "pass", "dmarc": "pass"}}
	result := &model.AnalysisResult{
		DKIM:  &model.DKIMResult{Status: model.DKIMPass, KeySize: 2048},
		Links: model.LinkAnalysisResult{HighestRisk: model.RiskDangerous},
	}
	score := Score(req, result)
	require.Equal(t, "danger", score.Verdict)
}

func TestScore_VerdictOverride_HighBECBelow60(t *testing.T) {
	req := &model.AnalysisRequest{}
	result := &model.AnalysisResult{
		Domain: model.DomainResult{Risk: model.RiskHigh},
		BEC: model.BECResult{Indicators: []model.BECIndicator{
			{Name: "x", Severity: model.BECHigh},
		}},
	}
	score := Score(req, result)
	require.Less(t, score.Score, 60)
	require.Equal(t, "danger", score.Verdict)
}

func TestScore_DKIMFactorZeroWhenNotPass(t *testing.T) {
	req := &model.AnalysisRequest{}
	result := &model.AnalysisResult{DKIM: &model.DKIMResult{Status: model.DKIMFail}}
	score := Score(req, result)
	// DKIM factor contributes 0; Authentication also penalizes DKIM not passing.
	require.Less(t, score.Score, 100)
}
