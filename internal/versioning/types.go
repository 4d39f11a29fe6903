// Package versioning derives the version descriptor shared by every artifact of one invocation.
package versioning

import "context"

// FileName is the descriptor written at the build directory root.
const FileName = "version.json"

// Descriptor identifies a build: the version string, the number of commits since the base
// version and the short commit hash of HEAD.
type Descriptor struct {
	Version string `json:"version"`
	Build   int    `json:"build"`
	Commit  string `json:"commit"`

	// Degraded reports that source-control metadata was unavailable and defaults were used.
	Degraded bool `json:"-"`
}

// Source answers the two source-control questions the descriptor needs.
type Source interface {
	// CommitsSince counts commits reachable from HEAD but not from base.
	CommitsSince(ctx context.Context, base string) (int, error)
	// HeadCommit returns the abbreviated hash of HEAD.
	HeadCommit(ctx context.Context) (string, error)
}
