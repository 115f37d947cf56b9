// Package log provides vary's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Entries flow through a
// Formatter (text or JSON) into one or more Outputs.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("engine"))
//	l.Info("server started", log.Str("http", ":8080"))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting
// JSON or text formatting and an optional file output. RedirectStdLog routes
// standard library logs (e.g. Pebble's) through a Logger.
package log
