// Package review contains the pull request review engine.
//
// An Orchestrator drives one run through a fixed sequence of phases:
// AnalyzeIntent, ClassifyRisk, ReviewFiles and Summarize. Each phase asks a
// providers.Analyzer for structured text through a StageRunner, which bounds
// the call with a timeout, extracts the fenced JSON payload and reports every
// failure as data rather than as a returned error. Stage results are folded
// into a WorkflowState by a single merge point, WorkflowState.Apply, which
// enforces set-once slots and append-only logs.
//
// File review is pluggable. Parallel fans one task per file out on a bounded
// pool and merges the results in input order once all tasks settle.
// Sequential reviews one file per phase step and loops on a cursor guard.
// Both emit exactly one FileReview per input file.
//
// Rules packs (rules.go) add focus areas and required checks to file review
// prompts and override issue severities by category.
package review
