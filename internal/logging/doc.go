// Package logging configures the process-wide zerolog logger and hands out
// per-component child loggers tagged with a "cmp" field.
package logging
