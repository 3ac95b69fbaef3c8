// Package github talks to the GitHub REST API on behalf of prgate.
//
// It authenticates either as a GitHub App installation (an RS256 JWT is
// exchanged for installation tokens, which [TokenCache] reuses until shortly
// before they expire) or with a static token. [Client.CollectSnapshot]
// gathers a pull request's metadata, files and commits into a [pr.Snapshot];
// [Client.PostComment] posts the finished review as an issue comment.
package github
