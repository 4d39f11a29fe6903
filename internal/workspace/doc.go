// Package workspace manages the scratch directory for a build, supporting both
// ephemeral (timestamped) and persistent (fixed-path) modes.
//
// Ephemeral mode creates timestamped directories (e.g., assetforge-20251214-122336-1a2b3c4d)
// that are removed completely after use.
//
// Persistent mode uses a fixed directory path (e.g., build/tmp) that survives builds, which
// keeps intermediate bundles around for inspection.
//
// Transient artifacts (the temporary scripting bundle, intermediate preference bundles) get
// randomized names from TempFile so concurrently running stages never collide.
package workspace
