package config

import (
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/assetforge/internal/bundle"
	"git.home.luguber.info/inful/assetforge/internal/defines"
	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/target"
)

// Path joins a project-relative path onto the project root.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Project.Root, filepath.FromSlash(rel))
}

// BuildDir is the absolute-or-root-relative build directory.
func (c *Config) BuildDir() string {
	return c.Path(c.Build.Dir)
}

// EntryTable returns the standard entries overlaid with the configured ones.
func (c *Config) EntryTable() map[string]bundle.Entry {
	table := bundle.StandardEntries()
	for _, e := range c.Entries {
		table[e.Name] = e
	}
	return table
}

// ResolveTargets turns target names into build targets. With no names, the configured
// targets are used in order. A configured target named like a built-in one extends it;
// any other name is only accepted when it is configured.
func (c *Config) ResolveTargets(names []string) ([]target.Target, error) {
	if len(names) == 0 {
		for _, tc := range c.Targets {
			names = append(names, tc.Name)
		}
	}

	configured := make(map[string]TargetConfig, len(c.Targets))
	for _, tc := range c.Targets {
		configured[tc.Name] = tc
	}

	entries := c.EntryTable()
	out := make([]target.Target, 0, len(names))
	for _, name := range names {
		t, builtin := target.Builtin(name)
		tc, isConfigured := configured[name]
		if !builtin && !isConfigured {
			return nil, ferrors.ConfigError("unknown target").
				WithContext("target", name).
				WithContext("builtin", target.Names()).
				Build()
		}
		if !builtin {
			t = target.Target{Name: name, Dir: name, Overrides: defines.New(nil)}
		}
		if isConfigured {
			if tc.Dir != "" {
				t.Dir = tc.Dir
			}
			if len(tc.Defines) > 0 {
				t.Overrides = t.Overrides.Merge(defines.New(tc.Defines))
			}
			if len(tc.Entries) > 0 {
				t.Entries = slices.Clone(tc.Entries)
			}
		}
		for _, e := range t.Entries {
			if _, ok := entries[e]; !ok {
				return nil, ferrors.ConfigError("target references an unknown entry").
					WithContext("target", name).
					WithContext("entry", e).
					Build()
			}
		}
		out = append(out, t)
	}
	return out, nil
}
