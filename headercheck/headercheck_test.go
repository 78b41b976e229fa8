package headercheck

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oonrumail/emailguard/model"
)

func TestAnalyze_Consistent(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{
		{Name: "From", Value: "Alice <alice@example.com>"},
		{Name: "Return-Path", Value: "<alice@example.com>"},
		{Name: "Date", Value: time.Now().Format(time.RFC1123Z)},
		{Name: "Message-ID", Value: "<abc123@example.com>"},
	}}
	r := Analyze(req)
	require.Empty(t, r.Issues)
}

func TestAnalyze_ReturnPathMismatch(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{
		{Name: "From", Value: "Alice <alice@example.com>"},
		{Name: "Return-Path", Value: "<bounce@evil.net>"},
	}}
	r := Analyze(req)
	require.Len(t, r.Issues, 1)
	require.Contains(t, r.Issues[0], "Return-Path domain")
}

func TestAnalyze_InvalidMessageID(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{
		{Name: "From", Value: "alice@example.com"},
		{Name: "Message-ID", Value: "not-an-id"},
	}}
	r := Analyze(req)
	require.Contains(t, r.Issues[0], "Message-ID")
}

func TestAnalyze_StaleDate(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{
		{Name: "From", Value: "alice@example.com"},
		{Name: "Date", Value: time.Now().Add(-400 * 24 * time.Hour).Format(time.RFC1123Z)},
	}}
	r := Analyze(req)
	require.Contains(t, r.Issues[0], "plausible range")
}
