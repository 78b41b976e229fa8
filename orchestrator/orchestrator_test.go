package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oonrumail/emailguard/model"
)

type fakeResolver struct{}

func (fakeResolver) LookupTXT(_ context.Context, _ string) ([]string, error) {
	return nil, nil
}

func TestAnalyzeFull_RunsAllEightFactors(t *testing.T) {
	o := New(fakeResolver{}, time.Second, 5*time.Second, zap.NewNop())
	req := &model.AnalysisRequest{
		Headers: []model.EmailHeader{
			{Name: "From", Value: "alice@example.com"},
			{Name: "Date", Value: time.Now().Format(time.RFC1123Z)},
		},
	}

	result := o.AnalyzeFull(context.Background(), req)

	require.NotNil(t, result.DKIM)
	require.Equal(t, model.DKIMNone, result.DKIM.Status)
	require.NotNil(t, result.ARC)
	require.Equal(t, model.ARCNone, result.ARC.Status)
	require.Equal(t, Version, result.Version)
	require.NotZero(t, result.Score.Grade)
}

func TestAnalyzeQuick_SkipsDKIMAndARC(t *testing.T) {
	o := New(fakeResolver{}, time.Second, 5*time.Second, nil)
	req := &model.AnalysisRequest{
		Headers: []model.EmailHeader{{Name: "From", Value: "alice@example.com"}},
	}

	result := o.AnalyzeQuick(req)

	require.Nil(t, result.DKIM)
	require.Nil(t, result.ARC)
	require.NotZero(t, result.Score.Grade)
}

func TestSenderDomain_ExtractsFromAngleAddr(t *testing.T) {
	req := &model.AnalysisRequest{Headers: []model.EmailHeader{
		{Name: "From", Value: "Alice <alice@example.com>"},
	}}
	require.Equal(t, "example.com", senderDomain(req))
}

func TestSenderDomain_NoFromHeader(t *testing.T) {
	req := &model.AnalysisRequest{}
	require.Equal(t, "", senderDomain(req))
}
