// Package logging wraps Zap with context-aware, correlation-friendly logging.
//
// Every log call accepts a context.Context and automatically attaches trace,
// session and request correlation fields. Loggers are constructed once at
// startup and passed explicitly; there is no package-level global logger.
package logging
