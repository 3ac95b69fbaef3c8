// Prgate reviews GitHub pull requests with an LLM.
//
// It reads the intent of a change, classifies its risk, reviews every
// changed file and writes one summary with an APPROVE, REQUEST_CHANGES or
// COMMENT decision. It runs as a webhook receiver that comments on pull
// requests, or once from the command line for CI gating.
//
// Usage:
//
//	prgate serve                          # receive GitHub webhook deliveries
//	prgate review pr 42 --repo acme/api   # review a pull request
//	prgate review pr 42 --post            # ...and comment on it
//	prgate review local --base main       # review the current branch
//	prgate hook install                   # review before every push
//
// Exit code 1 means the review requested changes.
package main
