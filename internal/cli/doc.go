// Package cli wires together the Cobra command tree for the prgate binary.
//
// It defines the root command and all subcommands (serve, review, config,
// models, cache, hook, version), binds flags, reads configuration, builds
// the analyzer, GitHub client and review orchestrator, and returns
// deterministic exit codes for CI gating.
package cli
