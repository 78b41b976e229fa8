package dmarc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rec, ok := Parse("v=DMARC1; p=reject; sp=quarantine; rua=mailto:dmarc@example.com; pct=100")
	require.True(t, ok)
	require.Equal(t, "reject", rec.Policy)
	require.Equal(t, "quarantine", rec.SubPolicy)
	require.Equal(t, []string{"mailto:dmarc@example.com"}, rec.RUA)
}

func TestParse_NotDMARC(t *testing.T) {
	_, ok := Parse("v=spf1 include:_spf.example.com ~all")
	require.False(t, ok)
}

func TestParseAuthenticationResults(t *testing.T) {
	results := ParseAuthenticationResults("mail.example.com; dkim=pass header.d=example.com; spf=fail smtp.mailfrom=example.com; dmarc=pass")
	require.Len(t, results, 3)
	require.Equal(t, AuthResult{Mechanism: "dkim", Result: "pass"}, results[0])
	require.Equal(t, AuthResult{Mechanism: "spf", Result: "fail"}, results[1])
	require.Equal(t, AuthResult{Mechanism: "dmarc", Result: "pass"}, results[2])
}
