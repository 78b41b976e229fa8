package spf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rec, ok := Parse("v=spf1 include:_spf.example.com ip4:203.0.113.0/24 ~all")
	require.True(t, ok)
	require.Equal(t, "~", rec.Qualifier)
	require.Contains(t, rec.Mechanisms, "~all")
}

func TestParse_NotSPF(t *testing.T) {
	_, ok := Parse("v=DMARC1; p=reject")
	require.False(t, ok)
}
