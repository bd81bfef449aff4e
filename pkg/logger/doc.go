// Package logger builds the application's slog logger: text output in
// development, JSON in production, tagged with the environment. Output can be
// teed to a size-rotated file.
package logger
