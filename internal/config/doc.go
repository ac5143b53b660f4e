// Package config loads and validates gatherer configuration.
//
// Configuration comes from a YAML file with ${VAR} environment expansion;
// command-line flags override individual fields after loading. Defaults are
// applied before validation so a minimal file (or no file at all, with
// tickers on the command line) is enough to run.
package config
