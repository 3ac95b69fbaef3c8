// Package pr defines the immutable pull-request snapshot reviewed by prgate.
//
// A [Snapshot] is built once by a collector (GitHub or local git) and never
// mutated afterwards. Its aggregate counts must agree with its file and commit
// sequences; [Snapshot.Validate] checks that invariant together with the
// per-file rules and reports every violation in a single [ValidationError].
package pr
