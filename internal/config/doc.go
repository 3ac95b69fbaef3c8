// Package config loads and merges prgate configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (PRGATE_PROVIDER, PRGATE_STRATEGY, GITHUB_APP_ID, etc.)
//  3. Config file ($XDG_CONFIG_HOME/prgate/config.json)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged, validated [Config], [Save] to write a config
// file, and [SetField] to update a single key.
package config
