package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/metrics"
)

type countingRecorder struct {
	metrics.NoopRecorder
	results map[string]metrics.ResultLabel
}

func (c *countingRecorder) IncStageResult(stage string, r metrics.ResultLabel) {
	c.results[stage] = r
}

func newState() (*BuildState, *countingRecorder) {
	rec := &countingRecorder{results: map[string]metrics.ResultLabel{}}
	return &BuildState{Report: newTargetReport("t", "/out/t"), Recorder: rec}, rec
}

func TestRunStagesOrderAndAbort(t *testing.T) {
	bs, rec := newState()
	var ran []StageName
	step := func(name StageName, err error) Stage {
		return func(context.Context, *BuildState) error {
			ran = append(ran, name)
			return err
		}
	}

	stages := NewPipeline().
		Add(StageComputeVersion, step(StageComputeVersion, nil)).
		Add(StageEmitLocale, step(StageEmitLocale, ferrors.InvalidLocaleName("bad locale").Build())).
		Add(StageBundle, step(StageBundle, errors.New("boom"))).
		Add(StageCollectAssets, step(StageCollectAssets, nil)).
		Build()

	err := RunStages(context.Background(), bs, stages)
	require.Error(t, err)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageErrorFatal, se.Kind)
	assert.Equal(t, StageBundle, se.Stage)

	assert.Equal(t, []StageName{StageComputeVersion, StageEmitLocale, StageBundle}, ran)
	assert.Equal(t, StageResultSuccess, bs.Report.StageResults[StageComputeVersion])
	assert.Equal(t, StageResultWarning, bs.Report.StageResults[StageEmitLocale])
	assert.Equal(t, StageResultFatal, bs.Report.StageResults[StageBundle])
	assert.Equal(t, metrics.ResultWarning, rec.results[string(StageEmitLocale)])
	assert.Len(t, bs.Report.Warnings, 1)
	assert.Len(t, bs.Report.Errors, 1)
	assert.Contains(t, bs.Report.StageDurations, StageBundle)

	bs.Report.Finish()
	assert.Equal(t, OutcomeFailed, bs.Report.Outcome)
}

func TestRunStagesCanceled(t *testing.T) {
	bs, _ := newState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RunStages(ctx, bs, NewPipeline().Add(StageComputeVersion, func(context.Context, *BuildState) error {
		called = true
		return nil
	}).Build())

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, StageResultCanceled, bs.Report.StageResults[StageComputeVersion])
	bs.Report.Finish()
	assert.Equal(t, OutcomeCanceled, bs.Report.Outcome)
}

func TestClassifyStageResult(t *testing.T) {
	tests := []struct {
		name  string
		stage StageName
		err   error
		res   StageResult
		code  ReportIssueCode
		abort bool
	}{
		{"success", StageBundle, nil, StageResultSuccess, "", false},
		{"plain error", StageBundle, errors.New("x"), StageResultFatal, IssueGenericStage, true},
		{"config", StageBundle, ferrors.ConfigError("x").Build(), StageResultFatal, IssueInvalidPlan, true},
		{"bundler", StageBundle, ferrors.ExternalToolError("x").Build(), StageResultFatal, IssueBundleFailure, true},
		{"preferences", StageParsePreferences, ferrors.EmptyPreferencesError("x").Build(), StageResultFatal, IssuePreferences, true},
		{"warning", StageComputeVersion, ferrors.GitError("x").Build(), StageResultWarning, IssueGenericStage, false},
		{"wrapped warning", StageComputeVersion, fmt.Errorf("head: %w", ferrors.GitError("x").Build()), StageResultWarning, IssueGenericStage, false},
		{"canceled", StageBundle, context.Canceled, StageResultCanceled, IssueCanceled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ClassifyStageResult(tt.stage, tt.err)
			assert.Equal(t, tt.res, out.Result)
			assert.Equal(t, tt.code, out.IssueCode)
			assert.Equal(t, tt.abort, out.Abort)
		})
	}
}

func TestPipelineAddIf(t *testing.T) {
	noop := func(context.Context, *BuildState) error { return nil }
	defs := NewPipeline().
		Add(StageComputeVersion, noop).
		AddIf(false, StageEmitLocale, noop).
		AddIf(true, StageBundle, noop).
		Build()
	require.Len(t, defs, 2)
	assert.Equal(t, StageComputeVersion, defs[0].Name)
	assert.Equal(t, StageBundle, defs[1].Name)
}

func TestRunOrderedKeepsOrderAndBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	results := runOrdered(items, 3, func(i int) (int, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		if i == 6 {
			return 0, errors.New("six")
		}
		return i * 10, nil
	})

	require.Len(t, results, len(items))
	for i, r := range results {
		if items[i] == 6 {
			assert.Error(t, r.Err)
			continue
		}
		assert.Equal(t, items[i]*10, r.Value)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.EqualError(t, firstError(results), "six")
	assert.Nil(t, runOrdered([]int(nil), 2, func(int) (int, error) { return 0, nil }))
}

func TestBuildReportPersist(t *testing.T) {
	r := NewBuildReport("id-1")
	tr := newTargetReport("generic", "/out/generic")
	tr.AddIssue(IssueSkippedLocale, StageEmitLocale, SeverityWarning, "skipped", errors.New("skipped"))
	tr.AddArtifact(Artifact{Name: "main", Path: "build/pdf.js", Bytes: 3})
	tr.StageDurations[StageBundle] = 1500 * time.Millisecond
	tr.StageResults[StageBundle] = StageResultSuccess
	tr.Finish()
	r.Targets = append(r.Targets, tr)
	r.Finish()
	assert.Equal(t, OutcomeWarning, r.Outcome)
	assert.Contains(t, r.Summary(), "targets=generic")

	path := filepath.Join(t.TempDir(), "reports", "build-report.json")
	require.NoError(t, r.Persist(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got BuildReportSerializable
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "id-1", got.BuildID)
	assert.Equal(t, "warning", got.Outcome)
	require.Len(t, got.Targets, 1)
	assert.Equal(t, int64(1500), got.Targets[0].StageDurationsMS["bundle"])
	assert.Equal(t, []string{"skipped"}, got.Targets[0].Warnings)
	assert.Equal(t, "build/pdf.js", got.Targets[0].Artifacts[0].Path)
	assert.NoFileExists(t, path+".tmp")
}
