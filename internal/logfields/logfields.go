package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyTarget     = "target"
	KeyEntry      = "entry"
	KeyStage      = "stage"
	KeyLocale     = "locale"
	KeyPath       = "path"
	KeyFile       = "file"
	KeyCount      = "count"
	KeyBytes      = "bytes"
	KeyDurationMS = "duration_ms"
	KeyVersion    = "version"
	KeyCommit     = "commit"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func Target(name string) slog.Attr    { return slog.String(KeyTarget, name) }
func Entry(name string) slog.Attr     { return slog.String(KeyEntry, name) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Locale(code string) slog.Attr    { return slog.String(KeyLocale, code) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Bytes(n int) slog.Attr           { return slog.Int(KeyBytes, n) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Commit(c string) slog.Attr       { return slog.String(KeyCommit, c) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

// Duration renders d as fractional milliseconds under KeyDurationMS.
func Duration(d time.Duration) slog.Attr {
	return DurationMS(float64(d.Microseconds()) / 1000)
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
