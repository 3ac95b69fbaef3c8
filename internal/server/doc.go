// Package server receives GitHub webhook deliveries and runs pull request
// reviews in the background.
//
// Routes:
//
//	GET  /healthz         job counters as JSON
//	POST /github/webhook  signed GitHub deliveries
//
// Only pull_request events with the actions opened, synchronize, reopened
// and ready_for_review start a review. Every accepted delivery is answered
// with 202 before the review starts.
package server
