// Package log provides pulsegrid's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Entries flow through a
// Formatter (text or JSON) to one or more Outputs, keeping output format
// consistent across the pipelines.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("gateway"))
//	l.Info("server started", log.Str("addr", ":4000"))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config (level + format),
// typically populated from flags or PULSEGRID_LOG_* environment variables.
package log
