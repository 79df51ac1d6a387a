// Package config provides loading and environment overlay for PulseGrid
// runtime configuration. It exposes a Default() baseline, JSON file loading,
// optional .env files, and a PULSEGRID_* environment overlay applied last.
//
// Example:
//
//	cfg, _ := config.Load("/etc/pulsegrid.json")
//	config.LoadDotEnv("")
//	config.FromEnv(&cfg)
package config
