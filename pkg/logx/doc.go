// Package logx provides the structured logging facade used across meetmail.
//
// It wraps zerolog with a small Field-based API and a Service that supports
// live reconfiguration (level and sinks) without invalidating existing loggers.
package logx
