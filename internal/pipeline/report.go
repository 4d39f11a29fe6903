package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/assetforge/internal/metrics"
	"git.home.luguber.info/inful/assetforge/internal/version"
	"git.home.luguber.info/inful/assetforge/internal/versioning"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"
	OutcomeWarning  BuildOutcome = "warning"
	OutcomeFailed   BuildOutcome = "failed"
	OutcomeCanceled BuildOutcome = "canceled"
)

func (o BuildOutcome) metricLabel() metrics.BuildOutcomeLabel {
	switch o {
	case OutcomeWarning:
		return metrics.OutcomeWarning
	case OutcomeFailed:
		return metrics.OutcomeFailed
	case OutcomeCanceled:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeSuccess
	}
}

// ReportIssueCode enumerates machine-parseable issue identifiers.
// These codes are a stable contract and should only be appended.
type ReportIssueCode string

const (
	IssueInvalidPlan     ReportIssueCode = "INVALID_PLAN"
	IssueSkippedLocale   ReportIssueCode = "SKIPPED_LOCALE"
	IssueDegradedVersion ReportIssueCode = "DEGRADED_VERSION"
	IssuePreferences     ReportIssueCode = "PREFERENCES_FAILURE"
	IssueBundleFailure   ReportIssueCode = "BUNDLE_FAILURE"
	IssueCanceled        ReportIssueCode = "BUILD_CANCELED"
	IssueGenericStage    ReportIssueCode = "GENERIC_STAGE_ERROR"
)

// IssueSeverity represents normalized severity levels.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ReportIssue is a structured taxonomy entry describing a discrete problem encountered.
type ReportIssue struct {
	Code     ReportIssueCode `json:"code"`
	Stage    StageName       `json:"stage,omitempty"`
	Severity IssueSeverity   `json:"severity"`
	Message  string          `json:"message"`
}

// Artifact is one file written into a target directory.
type Artifact struct {
	Name  string `json:"name"`
	Path  string `json:"path"` // relative to the target directory
	Bytes int    `json:"bytes"`
}

// TargetReport captures the run of one target's stages.
type TargetReport struct {
	Target          string
	Dir             string
	Start           time.Time
	End             time.Time
	Errors          []error
	Warnings        []error
	StageDurations  map[StageName]time.Duration
	StageResults    map[StageName]StageResult
	StageErrorKinds map[StageName]StageErrorKind
	Issues          []ReportIssue
	Artifacts       []Artifact
	Outcome         BuildOutcome
}

func newTargetReport(name, dir string) *TargetReport {
	return &TargetReport{
		Target:          name,
		Dir:             dir,
		Start:           time.Now(),
		StageDurations:  make(map[StageName]time.Duration),
		StageResults:    make(map[StageName]StageResult),
		StageErrorKinds: make(map[StageName]StageErrorKind),
	}
}

// AddIssue appends a structured issue and mirrors it into Errors/Warnings when err is set.
func (r *TargetReport) AddIssue(code ReportIssueCode, stage StageName, severity IssueSeverity, msg string, err error) {
	r.Issues = append(r.Issues, ReportIssue{Code: code, Stage: stage, Severity: severity, Message: msg})
	if err == nil {
		return
	}
	switch severity {
	case SeverityError:
		r.Errors = append(r.Errors, err)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, err)
	}
}

// RecordStageResult stores the result and forwards it to recorder.
func (r *TargetReport) RecordStageResult(stage StageName, res StageResult, recorder metrics.Recorder) {
	r.StageResults[stage] = res
	if recorder == nil {
		return
	}
	switch res {
	case StageResultSuccess:
		recorder.IncStageResult(string(stage), metrics.ResultSuccess)
	case StageResultWarning:
		recorder.IncStageResult(string(stage), metrics.ResultWarning)
	case StageResultFatal:
		recorder.IncStageResult(string(stage), metrics.ResultFatal)
	case StageResultCanceled:
		recorder.IncStageResult(string(stage), metrics.ResultCanceled)
	}
}

// AddArtifact records a written file.
func (r *TargetReport) AddArtifact(a Artifact) {
	r.Artifacts = append(r.Artifacts, a)
}

// DeriveOutcome sets Outcome from recorded errors and warnings.
func (r *TargetReport) DeriveOutcome() {
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			var se *StageError
			if errors.As(e, &se) && se.Kind == StageErrorCanceled {
				r.Outcome = OutcomeCanceled
				return
			}
		}
		r.Outcome = OutcomeFailed
		return
	}
	if len(r.Warnings) > 0 {
		r.Outcome = OutcomeWarning
		return
	}
	r.Outcome = OutcomeSuccess
}

// Finish sets the end time and derives the outcome.
func (r *TargetReport) Finish() {
	r.End = time.Now()
	r.DeriveOutcome()
}

// BuildReport aggregates the target reports of one invocation.
type BuildReport struct {
	SchemaVersion int
	BuildID       string
	Start         time.Time
	End           time.Time
	Version       versioning.Descriptor
	Targets       []*TargetReport
	Outcome       BuildOutcome
}

// NewBuildReport constructs a new BuildReport.
func NewBuildReport(buildID string) *BuildReport {
	return &BuildReport{SchemaVersion: 1, BuildID: buildID, Start: time.Now()}
}

// Target returns the report for name, or nil.
func (r *BuildReport) Target(name string) *TargetReport {
	for _, t := range r.Targets {
		if t.Target == name {
			return t
		}
	}
	return nil
}

// Finish sets the end time and folds the target outcomes: any failure fails the build,
// any warning downgrades success.
func (r *BuildReport) Finish() {
	r.End = time.Now()
	r.Outcome = OutcomeSuccess
	for _, t := range r.Targets {
		switch t.Outcome {
		case OutcomeCanceled:
			r.Outcome = OutcomeCanceled
			return
		case OutcomeFailed:
			r.Outcome = OutcomeFailed
		case OutcomeWarning:
			if r.Outcome == OutcomeSuccess {
				r.Outcome = OutcomeWarning
			}
		}
	}
}

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	names := make([]string, len(r.Targets))
	artifacts, warnings := 0, 0
	for i, t := range r.Targets {
		names[i] = t.Target
		artifacts += len(t.Artifacts)
		warnings += len(t.Warnings)
	}
	dur := r.End.Sub(r.Start)
	return fmt.Sprintf("targets=%s version=%s artifacts=%d warnings=%d duration=%s outcome=%s",
		strings.Join(names, ","), r.Version.Version, artifacts, warnings, dur.Truncate(time.Millisecond), string(r.Outcome))
}

// Persist writes the report as JSON to path atomically.
func (r *BuildReport) Persist(path string) error {
	if r.End.IsZero() {
		r.Finish()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("ensure directory for report: %w", err)
	}
	jb, err := json.MarshalIndent(r.SanitizedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, jb, 0o600); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename json: %w", err)
	}
	return nil
}

// SanitizedCopy converts the report into its JSON form.
func (r *BuildReport) SanitizedCopy() *BuildReportSerializable {
	s := &BuildReportSerializable{
		SchemaVersion:   r.SchemaVersion,
		BuildID:         r.BuildID,
		Start:           r.Start,
		End:             r.End,
		Version:         r.Version,
		VersionDegraded: r.Version.Degraded,
		Targets:         make([]TargetReportSerializable, len(r.Targets)),
		Outcome:         string(r.Outcome),
		ToolVersion:     version.Version,
	}
	for i, t := range r.Targets {
		s.Targets[i] = t.serializable()
	}
	return s
}

func (r *TargetReport) serializable() TargetReportSerializable {
	durations := make(map[string]int64, len(r.StageDurations))
	for k, v := range r.StageDurations {
		durations[string(k)] = v.Milliseconds()
	}
	results := make(map[string]string, len(r.StageResults))
	for k, v := range r.StageResults {
		results[string(k)] = string(v)
	}
	issues := r.Issues
	if issues == nil {
		issues = []ReportIssue{}
	}
	artifacts := r.Artifacts
	if artifacts == nil {
		artifacts = []Artifact{}
	}
	s := TargetReportSerializable{
		Target:           r.Target,
		Dir:              r.Dir,
		Start:            r.Start,
		End:              r.End,
		Errors:           make([]string, len(r.Errors)),
		Warnings:         make([]string, len(r.Warnings)),
		StageDurationsMS: durations,
		StageResults:     results,
		Issues:           issues,
		Artifacts:        artifacts,
		Outcome:          string(r.Outcome),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// BuildReportSerializable mirrors BuildReport with string errors for JSON output.
type BuildReportSerializable struct {
	SchemaVersion   int                        `json:"schema_version"`
	BuildID         string                     `json:"build_id"`
	Start           time.Time                  `json:"start"`
	End             time.Time                  `json:"end"`
	Version         versioning.Descriptor      `json:"version"`
	VersionDegraded bool                       `json:"version_degraded"`
	Targets         []TargetReportSerializable `json:"targets"`
	Outcome         string                     `json:"outcome"`
	ToolVersion     string                     `json:"assetforge_version"`
}

// TargetReportSerializable mirrors TargetReport for JSON output.
type TargetReportSerializable struct {
	Target           string            `json:"target"`
	Dir              string            `json:"dir"`
	Start            time.Time         `json:"start"`
	End              time.Time         `json:"end"`
	Errors           []string          `json:"errors"`
	Warnings         []string          `json:"warnings"`
	StageDurationsMS map[string]int64  `json:"stage_durations_ms"`
	StageResults     map[string]string `json:"stage_results"`
	Issues           []ReportIssue     `json:"issues"`
	Artifacts        []Artifact        `json:"artifacts"`
	Outcome          string            `json:"outcome"`
}
