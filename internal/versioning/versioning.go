package versioning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// Compute builds the descriptor for prefix and base. Source-control failures never fail the
// build: the counter falls back to 0, the commit to "" and Degraded is set.
func Compute(ctx context.Context, src Source, prefix, base string) Descriptor {
	d := Descriptor{}

	build, err := src.CommitsSince(ctx, base)
	if err != nil {
		slog.Warn("Not a usable git repository; using default build number", logfields.Error(err))
		build = 0
		d.Degraded = true
	}
	d.Build = build
	d.Version = prefix + strconv.Itoa(build)

	commit, err := src.HeadCommit(ctx)
	if err != nil {
		slog.Warn("Could not determine build commit", logfields.Error(err))
		commit = ""
		d.Degraded = true
	}
	d.Commit = commit

	slog.Info("Computed build version",
		logfields.Version(d.Version),
		logfields.Commit(d.Commit),
		slog.Int("build", d.Build),
		slog.Bool("degraded", d.Degraded))
	return d
}

// Resolver computes the descriptor at most once.
type Resolver struct {
	Source Source
	Prefix string
	Base   string

	once sync.Once
	desc Descriptor
}

// NewResolver returns a Resolver over src.
func NewResolver(src Source, prefix, base string) *Resolver {
	return &Resolver{Source: src, Prefix: prefix, Base: base}
}

// Descriptor returns the memoized descriptor, computing it on first use.
func (r *Resolver) Descriptor(ctx context.Context) Descriptor {
	r.once.Do(func() {
		r.desc = Compute(ctx, r.Source, r.Prefix, r.Base)
	})
	return r.desc
}

// Write stores d as dir/version.json with two-space indentation.
func Write(dir string, d Descriptor) (string, error) {
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode version descriptor: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create build directory: %w", err)
	}
	dest := filepath.Join(dir, FileName)
	if err := os.WriteFile(dest, b, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", FileName, err)
	}
	return dest, nil
}

// Read loads dir/version.json.
func Read(dir string) (Descriptor, error) {
	var d Descriptor
	// #nosec G304 - dir is the configured build directory
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return d, fmt.Errorf("read %s: %w", FileName, err)
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", FileName, err)
	}
	return d, nil
}
