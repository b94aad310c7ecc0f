package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID       = "run_id"
	KeyStage       = "stage"
	KeyBase        = "base"
	KeyHead        = "head"
	KeyTag         = "tag"
	KeyArtifact    = "artifact"
	KeyEnvironment = "environment"
	KeyRuntime     = "runtime"
	KeyPath        = "path"
	KeyURL         = "url"
	KeyCommand     = "command"
	KeyExitCode    = "exit_code"
	KeyBytes       = "bytes"
	KeyDurationMS  = "duration_ms"
	KeyAttempt     = "attempt"
	KeyError       = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr        { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr      { return slog.String(KeyStage, name) }
func Base(rev string) slog.Attr        { return slog.String(KeyBase, rev) }
func Head(rev string) slog.Attr        { return slog.String(KeyHead, rev) }
func Tag(name string) slog.Attr        { return slog.String(KeyTag, name) }
func Artifact(name string) slog.Attr   { return slog.String(KeyArtifact, name) }
func Environment(id string) slog.Attr  { return slog.String(KeyEnvironment, id) }
func Runtime(name string) slog.Attr    { return slog.String(KeyRuntime, name) }
func Path(p string) slog.Attr          { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr           { return slog.String(KeyURL, u) }
func Command(c string) slog.Attr       { return slog.String(KeyCommand, c) }
func ExitCode(code int) slog.Attr      { return slog.Int(KeyExitCode, code) }
func Bytes(n int64) slog.Attr          { return slog.Int64(KeyBytes, n) }
func Attempt(n int) slog.Attr          { return slog.Int(KeyAttempt, n) }
func DurationMS(ms float64) slog.Attr  { return slog.Float64(KeyDurationMS, ms) }
func Since(start time.Time) slog.Attr {
	return DurationMS(float64(time.Since(start).Microseconds()) / 1000)
}
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
