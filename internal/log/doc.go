// Package log provides logging utilities for playcrawl.
//
// The crawler handles account passwords, encrypted credential blobs, bearer
// tokens, and download tokens on almost every request. RedactHandler wraps
// any slog.Handler and masks these values before they reach the underlying
// handler, so enabling debug logging never leaks a credential into log files.
package log
