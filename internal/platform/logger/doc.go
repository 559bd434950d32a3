// Package logger configures the process-wide slog JSON logger and carries
// request- and task-scoped loggers through context, so every line under a
// request or indexing run shares its trace attributes.
package logger
