package output

import (
	"github.com/dshills/prgate/internal/pr"
	"github.com/dshills/prgate/internal/review"
)

func sampleResult() *review.Result {
	return &review.Result{
		RunID:       "01HZXAMPLE",
		PR:          review.PRInfo{Repo: pr.Repo{Owner: "acme", Name: "api"}, Number: 7, Title: "Add login", Author: "octocat"},
		Strategy:    "parallel",
		Decision:    review.DecisionRequestChanges,
		FinalReview: "The login flow needs a nil check.",
		Intent:      review.Intent{Type: review.IntentFeature, Summary: "Adds login", Complexity: review.ComplexityMedium},
		Risk:        review.RiskAssessment{Level: review.RiskHigh, Score: 8, Factors: []string{"critical_file_modified"}},
		FileReviews: []review.FileReview{
			{
				Index:   0,
				Path:    "auth/login.go",
				Verdict: review.VerdictBlocking,
				Issues: []review.Issue{
					{Severity: review.SeverityHigh, Category: "bug", Message: "Possible nil dereference", Suggestion: "if user == nil { return err }"},
					{Severity: review.SeverityLow, Category: "style", Message: "Rename variable", Suggestion: "Use a clearer name"},
				},
				Summary: "Handles login.",
			},
			{Index: 1, Path: "README.md", Verdict: review.VerdictApprove, Summary: "Docs only."},
		},
		Errors: []review.ErrorEntry{
			{Kind: review.KindTransport, Stage: review.StageRisk, Subject: "acme/api#7", FileIndex: -1, Message: "timeout"},
		},
		Timing: review.Timing{TotalMs: 1234},
	}
}
