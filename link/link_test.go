package link

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func TestAnalyze_HTMLAndTextDedup(t *testing.T) {
	req := &model.AnalysisRequest{
		HTML: `<a href="https://example.com/path">click here</a>`,
		Text: "also see https://example.com/path for details",
	}
	result := Analyze(req)
	require.Len(t, result.Links, 1)
}

func TestEvaluate_Shortener(t *testing.T) {
	r := evaluate("https://bit.ly/abc123", "")
	require.Equal(t, model.RiskSuspicious, r.Risk)
	require.Contains(t, r.Issues, "known URL shortener")
}

func TestEvaluate_SuspiciousTLD(t *testing.T) {
	r := evaluate("https://free-gift.xyz/claim", "")
	require.Equal(t, model.RiskSuspicious, r.Risk)
}

func TestEvaluate_PrivateIPLiteral(t *testing.T) {
	r := evaluate("http://192.168.1.10/login", "")
	require.Equal(t, model.RiskDangerous, r.Risk)
	require.Contains(t, r.Issues, "IP-literal host in private range")
}

func TestEvaluate_PublicIPLiteral(t *testing.T) {
	r := evaluate("http://203.0.113.5/", "")
	require.Equal(t, model.RiskSuspicious, r.Risk)
}

func TestEvaluate_NonStandardPort(t *testing.T) {
	r := evaluate("https://example.com:9999/", "")
	require.Contains(t, r.Issues, "non-standard port")
}

func TestEvaluate_DataScheme(t *testing.T) {
	r := evaluate("data:text/html,<script>alert(1)</script>", "")
	require.Equal(t, model.RiskDangerous, r.Risk)
}

func TestEvaluate_DisplayMismatch(t *testing.T) {
	r := evaluate("http://evil.tk/x", "amazon.co.jp")
	require.Equal(t, model.RiskDangerous, r.Risk)
	require.Contains(t, r.Issues, "display URL (amazon.co.jp) and actual URL (evil.tk) differ")
}

func TestEvaluate_BrandNameHostMismatch(t *testing.T) {
	r := evaluate("https://secure-paypal-verify.net/login", "click to access your paypal account")
	require.Equal(t, model.RiskDangerous, r.Risk)
}

func TestEvaluate_CredentialBaitPath(t *testing.T) {
	r := evaluate("https://some-random-site.com/reset", "")
	require.Equal(t, model.RiskSuspicious, r.Risk)
	require.Contains(t, r.Issues, "credential-bait path")
}

func TestEvaluate_ConfusableHost(t *testing.T) {
	r := evaluate("https://pаypal.com/login", "") // Cyrillic а
	require.Equal(t, model.RiskDangerous, r.Risk)
}

func TestEvaluate_CleanHTTPS(t *testing.T) {
	r := evaluate("https://example.com/about", "")
	require.Equal(t, model.RiskNone, r.Risk)
}

func TestDecodePercent_Iterative(t *testing.T) {
	require.Equal(t, "https://example.com/a b", decodePercent("https://example.com/a%2520b"))
}

func TestAnalyze_SortedByRisk(t *testing.T) {
	req := &model.AnalysisRequest{
		Text: "safe: https://example.com bad: data:text/html,x shortener: https://bit.ly/x",
	}
	result := Analyze(req)
	require.Equal(t, model.RiskDangerous, result.HighestRisk)
	require.Equal(t, model.RiskDangerous, result.Links[0].Risk)
}
