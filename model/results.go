package model

import "time"

// DKIMStatus mirrors RFC 6376 verification outcomes.
type DKIMStatus string

const (
	DKIMNone      DKIMStatus = "none"
	DKIMPass      DKIMStatus = "pass"
	DKIMFail      DKIMStatus = "fail"
	DKIMTempError DKIMStatus = "temperror"
	DKIMPermError DKIMStatus = "permerror"
)

// DKIMResult is the outcome of verifying the (first) DKIM-Signature header.
type DKIMResult struct {
	Status         DKIMStatus `json:"status"`
	Domain         string     `json:"domain,omitempty"`
	Selector       string     `json:"selector,omitempty"`
	Algorithm      string     `json:"algorithm,omitempty"`
	KeySize        int        `json:"keySize,omitempty"`
	BodyHashValid  bool       `json:"bodyHashValid"`
	SignatureValid bool       `json:"signatureValid"`
	Issues         []string   `json:"issues,omitempty"`
}

// ARCStatus mirrors RFC 8617 chain-validation outcomes.
type ARCStatus string

const (
	ARCNone ARCStatus = "none"
	ARCPass ARCStatus = "pass"
	ARCFail ARCStatus = "fail"
)

// ARCSetResult is the verification outcome for one instance in the chain.
type ARCSetResult struct {
	Instance        int    `json:"instance"`
	ChainValidation string `json:"cv"`
	Domain          string `json:"domain,omitempty"`
	Selector        string `json:"selector,omitempty"`
	SealValid       bool   `json:"sealValid"`
}

// ARCResult is the overall chain verdict.
type ARCResult struct {
	Status ARCStatus      `json:"status"`
	Sets   []ARCSetResult `json:"sets,omitempty"`
	Issues []string       `json:"issues,omitempty"`
}

// RiskLevel is a shared three-way risk band used by several factors.
type RiskLevel string

const (
	RiskNone       RiskLevel = "none"
	RiskSafe       RiskLevel = "safe"
	RiskLow        RiskLevel = "low"
	RiskSuspicious RiskLevel = "suspicious"
	RiskDangerous  RiskLevel = "dangerous"
	RiskWarning    RiskLevel = "warning"
	RiskDanger     RiskLevel = "danger"
	RiskMedium     RiskLevel = "medium"
	RiskHigh       RiskLevel = "high"
)

// TLSPathResult is the reconstructed delivery path.
type TLSPathResult struct {
	Risk   RiskLevel `json:"risk"`
	Hops   []TLSHop  `json:"hops"`
	Issues []string  `json:"issues,omitempty"`
}

// TLSHop is one Received-header hop, origin-first.
type TLSHop struct {
	From       string     `json:"from"`
	By         string     `json:"by"`
	Protocol   string     `json:"protocol"`
	Encrypted  bool       `json:"encrypted"`
	TLSVersion string     `json:"tlsVersion,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// LinkResult is the analysis of one extracted URL.
type LinkResult struct {
	URL         string    `json:"url"`
	DisplayText string    `json:"displayText,omitempty"`
	Host        string    `json:"host"`
	Risk        RiskLevel `json:"risk"`
	Issues      []string  `json:"issues,omitempty"`
}

// LinkAnalysisResult aggregates every link found in a message.
type LinkAnalysisResult struct {
	Links       []LinkResult `json:"links"`
	HighestRisk RiskLevel    `json:"highestRisk"`
}

// AttachmentResult is the per-attachment risk verdict.
type AttachmentResult struct {
	Filename string    `json:"filename"`
	Risk     RiskLevel `json:"risk"`
	Issues   []string  `json:"issues,omitempty"`
}

// AttachmentAnalysisResult aggregates every attachment in a message.
type AttachmentAnalysisResult struct {
	Attachments []AttachmentResult `json:"attachments"`
	HighestRisk RiskLevel          `json:"highestRisk"`
}

// BECSeverity is the severity band for a matched BEC indicator.
type BECSeverity string

const (
	BECLow    BECSeverity = "low"
	BECMedium BECSeverity = "medium"
	BECHigh   BECSeverity = "high"
)

// BECIndicator is one matched pattern or composite indicator.
type BECIndicator struct {
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Severity BECSeverity `json:"severity"`
	Evidence string      `json:"evidence,omitempty"`
}

// BECResult aggregates every matched indicator, sorted high→low severity.
type BECResult struct {
	Indicators []BECIndicator `json:"indicators"`
}

// ConfusableReplacement records one codepoint substitution during
// normalization.
type ConfusableReplacement struct {
	Original   string `json:"original"`
	Position   int    `json:"position"`
	Normalized string `json:"normalized"`
	Script     string `json:"script"`
}

// DomainResult is the confusables/homograph verdict for one domain.
type DomainResult struct {
	Domain         string                  `json:"domain"`
	Normalized     string                  `json:"normalized"`
	Risk           RiskLevel               `json:"risk"`
	MatchedDomain  string                  `json:"matchedDomain,omitempty"`
	Similarity     float64                 `json:"similarity,omitempty"`
	Techniques     []string                `json:"techniques,omitempty"`
	Replacements   []ConfusableReplacement `json:"replacements,omitempty"`
	IsIDN          bool                    `json:"isIDN"`
	Punycode       string                  `json:"punycode,omitempty"`
}

// HeaderConsistencyResult is the From/Return-Path/Reply-To/Date/Message-ID
// consistency check outcome.
type HeaderConsistencyResult struct {
	Issues []string `json:"issues,omitempty"`
}

// SecurityScore is the weighted aggregate produced by the Scorer.
type SecurityScore struct {
	Score   int      `json:"score"`
	Grade   string   `json:"grade"`
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons,omitempty"`
}

// FactorTimings records how long each factor took, for observability.
type FactorTimings map[string]time.Duration

// AnalysisResult is the full output of an analysis run. DKIM/ARC are nil
// for AnalyzeQuick.
type AnalysisResult struct {
	DKIM              *DKIMResult              `json:"dkim,omitempty"`
	ARC               *ARCResult               `json:"arc,omitempty"`
	TLSPath           TLSPathResult            `json:"tlsPath"`
	Links             LinkAnalysisResult       `json:"links"`
	Attachments       AttachmentAnalysisResult `json:"attachments"`
	BEC               BECResult                `json:"bec"`
	Domain            DomainResult             `json:"domain"`
	HeaderConsistency HeaderConsistencyResult  `json:"headerConsistency"`
	Score             SecurityScore            `json:"score"`
	AnalyzedAt        time.Time                `json:"analyzedAt"`
	Version           string                   `json:"version"`
}
