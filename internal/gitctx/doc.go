// Package gitctx builds pull request snapshots from a local git repository.
//
// [LocalSnapshot] diffs a head revision against a base, parses the unified
// diff with go-gitdiff and collects the commits in between, so a branch can
// be reviewed before it is pushed. Files matching exclude glob patterns are
// left out of the snapshot.
package gitctx
