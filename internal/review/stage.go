package review

import (
	"context"
	"time"

	"github.com/XiaoConstantine/dspy-go/pkg/logging"
	"github.com/oklog/ulid/v2"

	"github.com/dshills/prgate/internal/providers"
)

// Call is one analyzer invocation made on behalf of a stage.
type Call struct {
	Stage     Stage
	Subject   string
	FileIndex int
	System    string
	Prompt    string
}

func (c Call) label() string {
	if c.Stage == StageFile {
		return "file:" + c.Subject
	}
	return string(c.Stage)
}

// Outcome is the result of one StageRunner call. Exactly one Diagnostic is
// always produced. On failure Err is the typed error and Entry its error log
// record; Raw keeps whatever text the analyzer returned.
type Outcome struct {
	Raw        string
	Extraction Extraction
	Diagnostic Diagnostic
	Err        error
	Entry      *ErrorEntry
}

// OK reports whether the response was fetched and decoded.
func (o Outcome) OK() bool { return o.Err == nil }

// StageRunner asks the analyzer one question and interprets the answer.
// It never returns an error: failures are reported in the Outcome.
type StageRunner struct {
	analyzer  providers.Analyzer
	timeout   time.Duration
	maxTokens int
	logger    *logging.Logger
	now       func() time.Time
}

// NewStageRunner creates a runner. A zero timeout disables the per-call bound.
func NewStageRunner(a providers.Analyzer, timeout time.Duration, maxTokens int, logger *logging.Logger) *StageRunner {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &StageRunner{
		analyzer:  a,
		timeout:   timeout,
		maxTokens: maxTokens,
		logger:    logger,
		now:       time.Now,
	}
}

// Run invokes the analyzer with call and decodes the response into out.
func (r *StageRunner) Run(ctx context.Context, call Call, out any) Outcome {
	start := r.now()
	diag := Diagnostic{
		ID:        ulid.Make().String(),
		Stage:     call.Stage,
		Subject:   call.Subject,
		FileIndex: call.FileIndex,
		At:        start,
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug(ctx, "analyzer call %s (%d prompt bytes)", call.label(), len(call.Prompt))
	resp, err := r.analyzer.Analyze(callCtx, providers.Request{
		System:    call.System,
		Prompt:    call.Prompt,
		MaxTokens: r.maxTokens,
		JSON:      call.Stage != StageSummarize,
		Label:     call.label(),
	})
	diag.Duration = r.now().Sub(start)

	if err != nil {
		terr := &TransportError{Stage: call.Stage, Subject: call.Subject, Err: err}
		diag.Degraded = true
		diag.Note = terr.Error()
		r.logger.Warn(ctx, "%s", terr.Error())
		return Outcome{Diagnostic: diag, Err: terr, Entry: r.entry(KindTransport, call, terr)}
	}

	diag.Response = resp.Content
	diag.TokensUsed = resp.TokensUsed

	ext, perr := ExtractInto(resp.Content, out)
	if ext.Degraded {
		diag.Degraded = true
		diag.Note = "response fence was not closed; parsed to end of text"
		r.logger.Warn(ctx, "%s: response fence was not closed, parsing to end of text", call.label())
	}
	if perr != nil {
		diag.Degraded = true
		diag.Note = perr.Error()
		r.logger.Warn(ctx, "%s: %v", call.label(), perr)
		return Outcome{Raw: resp.Content, Extraction: ext, Diagnostic: diag, Err: perr, Entry: r.entry(KindParse, call, perr)}
	}

	r.logger.Debug(ctx, "analyzer call %s done in %s", call.label(), diag.Duration)
	return Outcome{Raw: resp.Content, Extraction: ext, Diagnostic: diag}
}

func (r *StageRunner) entry(kind ErrorKind, call Call, err error) *ErrorEntry {
	return &ErrorEntry{
		Kind:      kind,
		Stage:     call.Stage,
		Subject:   call.Subject,
		FileIndex: call.FileIndex,
		Message:   err.Error(),
		At:        r.now(),
	}
}
