// Package cache provides a file-based cache for analyzer responses.
//
// Entries are keyed by a SHA-256 hash of the provider name, model, system
// prompt and user prompt. Each entry stores the raw analyzer text, the token
// count reported with it and a creation timestamp. Expired entries are
// skipped on read and counted by Stats.
//
// The default cache directory is $XDG_CACHE_HOME/prgate (or the
// OS-appropriate equivalent). Prompts reaching the cache have already been
// through secret redaction.
package cache
