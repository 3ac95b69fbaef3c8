// Package redact removes secrets from patch text before it is sent to any
// analyzer.
//
// Detection uses regex heuristics covering common secret shapes: API keys,
// JWTs, private keys, AWS access key IDs and secret access keys, bearer
// tokens, and provider-specific tokens (Anthropic, OpenAI, GitHub, Slack).
//
// A Policy also supports path-based redaction: files whose paths match
// configured glob patterns have their entire patch replaced with [REDACTED]
// rather than being scanned line by line.
package redact
