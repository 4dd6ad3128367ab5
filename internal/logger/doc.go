// Package logger wraps zap with a process-wide sugared logger and context
// helpers (ToContext/FromContext/WithName/WithKV).
//
// Packaging code takes a context and logs through it, so every message
// emitted during a run carries the run's name and fields.
package logger
