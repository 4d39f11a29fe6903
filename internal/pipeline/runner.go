package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
	"git.home.luguber.info/inful/assetforge/internal/observability"
)

// StageOutcome is the normalized result of a stage execution.
type StageOutcome struct {
	Stage     StageName
	Error     *StageError
	Result    StageResult
	IssueCode ReportIssueCode
	Severity  IssueSeverity
	Abort     bool
}

// ClassifyStageResult converts a raw stage error into a StageOutcome. Plain errors are fatal;
// classified errors of warning severity become warnings.
func ClassifyStageResult(stage StageName, err error) StageOutcome {
	if err == nil {
		return StageOutcome{Stage: stage, Result: StageResultSuccess}
	}

	var se *StageError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			se = NewCanceledStageError(stage, err)
		} else if ferrors.HasSeverity(err, ferrors.SeverityWarning) {
			se = NewWarnStageError(stage, err)
		} else {
			se = NewFatalStageError(stage, err)
		}
	}

	switch se.Kind {
	case StageErrorCanceled:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultCanceled, IssueCode: IssueCanceled, Severity: SeverityError, Abort: true}
	case StageErrorWarning:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultWarning, IssueCode: classifyIssueCode(se), Severity: SeverityWarning}
	default:
		return StageOutcome{Stage: stage, Error: se, Result: StageResultFatal, IssueCode: classifyIssueCode(se), Severity: SeverityError, Abort: true}
	}
}

func classifyIssueCode(se *StageError) ReportIssueCode {
	switch {
	case ferrors.HasCategory(se.Err, ferrors.CategoryConfig):
		return IssueInvalidPlan
	case ferrors.HasCategory(se.Err, ferrors.CategoryPreferences):
		return IssuePreferences
	case se.Stage == StageBundle && ferrors.HasCategory(se.Err, ferrors.CategoryExternalTool):
		return IssueBundleFailure
	default:
		return IssueGenericStage
	}
}

// RunStages executes stages in order, recording timing and stopping on the first fatal error.
func RunStages(ctx context.Context, bs *BuildState, stages []StageDef) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := NewCanceledStageError(st.Name, ctx.Err())
			bs.Report.StageErrorKinds[st.Name] = se.Kind
			bs.Report.AddIssue(IssueCanceled, st.Name, SeverityError, se.Error(), se)
			bs.Report.RecordStageResult(st.Name, StageResultCanceled, bs.Recorder)
			return se
		default:
		}

		stageCtx := observability.WithStage(ctx, string(st.Name))
		observability.DebugContext(stageCtx, "Stage started")

		t0 := time.Now()
		err := st.Fn(stageCtx, bs)
		dur := time.Since(t0)

		bs.Report.StageDurations[st.Name] = dur
		if bs.Recorder != nil {
			bs.Recorder.ObserveStageDuration(string(st.Name), dur)
		}

		out := ClassifyStageResult(st.Name, err)
		if out.Error != nil {
			bs.Report.StageErrorKinds[st.Name] = out.Error.Kind
			bs.Report.AddIssue(out.IssueCode, out.Stage, out.Severity, out.Error.Error(), out.Error)
		}
		bs.Report.RecordStageResult(st.Name, out.Result, bs.Recorder)

		observability.InfoContext(stageCtx, "Stage finished",
			logfields.Duration(dur),
			slog.String("result", string(out.Result)))

		if out.Abort {
			return out.Error
		}
	}
	return nil
}
