package strategy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/patch"
)

const (
	rebaseHeadRevisionConstant = "REBASE_HEAD"

	executorLoggerMissingMessageConstant         = "strategy executor logger not configured"
	executorRepositoryMissingMessageConstant     = "strategy executor repository not configured"
	executorBackupMissingMessageConstant         = "strategy executor backup manager not configured"
	executorFixupBuilderMissingMessageConstant   = "strategy executor fixup builder not configured"
	executorRebaseMissingMessageConstant         = "strategy executor rebase service not configured"
	executorArbiterMissingMessageConstant        = "strategy executor conflict arbiter not configured"
	executionStageFailureMessageTemplateConstant = "%s stage failed"

	abortedReasonNoFixupsConstant     = "no applicable patches"
	abortedReasonUserConstant         = "aborted on conflict"
	abortedReasonRebaseFailedConstant = "rebase failed"

	executionStartedLogMessageConstant  = "strategy execution started"
	executionFinishedLogMessageConstant = "strategy execution finished"
	fixupsConstructedLogMessageConstant = "fixup commits constructed"
	rebaseAbortFailedLogMessageConstant = "rebase abort failed during rollback"
	leftoverPatchKeptLogMessageConstant = "unapproved changes left in backup stash"
	strategyFieldNameConstant           = "strategy"
	outcomeFieldNameConstant            = "outcome"
	fixupCountFieldNameConstant         = "fixup_count"
	skippedTargetCountFieldNameConstant = "skipped_target_count"
)

// Sentinel configuration errors.
var (
	ErrExecutorLoggerNotConfigured       = errors.New(executorLoggerMissingMessageConstant)
	ErrExecutorRepositoryNotConfigured   = errors.New(executorRepositoryMissingMessageConstant)
	ErrExecutorBackupNotConfigured       = errors.New(executorBackupMissingMessageConstant)
	ErrExecutorFixupBuilderNotConfigured = errors.New(executorFixupBuilderMissingMessageConstant)
	ErrExecutorRebaseNotConfigured       = errors.New(executorRebaseMissingMessageConstant)
	ErrExecutorArbiterNotConfigured      = errors.New(executorArbiterMissingMessageConstant)
)

// ExecutionStage names the phase of strategy execution an error escaped from.
type ExecutionStage string

// Execution stages.
const (
	ExecutionStageBackup  ExecutionStage = "backup"
	ExecutionStageFixup   ExecutionStage = "fixup"
	ExecutionStagePrepare ExecutionStage = "prepare"
	ExecutionStageRebase  ExecutionStage = "rebase"
	ExecutionStageRestore ExecutionStage = "restore"
)

// ExecutionError wraps a failure with the stage it escaped from.
type ExecutionError struct {
	Stage ExecutionStage
	Cause error
}

// Error describes the failed stage.
func (executionError ExecutionError) Error() string {
	message := fmt.Sprintf(executionStageFailureMessageTemplateConstant, string(executionError.Stage))
	if executionError.Cause != nil {
		message = message + ": " + executionError.Cause.Error()
	}
	return message
}

// Unwrap exposes the underlying cause.
func (executionError ExecutionError) Unwrap() error {
	return executionError.Cause
}

// ConflictDecision selects how to proceed when the rebase pauses on a
// conflict.
type ConflictDecision string

// Conflict decisions.
const (
	ConflictDecisionContinue ConflictDecision = "continue"
	ConflictDecisionSkip     ConflictDecision = "skip"
	ConflictDecisionAbort    ConflictDecision = "abort"
)

// ConflictReport describes a paused rebase awaiting a decision.
type ConflictReport struct {
	TargetCommit    string
	ConflictedFiles []string
}

// ConflictArbiter decides how a paused rebase proceeds. The continue decision
// expects the caller to have resolved the conflicted files first.
type ConflictArbiter interface {
	DecideConflict(executionContext context.Context, report ConflictReport) (ConflictDecision, error)
}

// RebaseService drives the todo-based rebase for the executor.
type RebaseService interface {
	Run(executionContext context.Context, repositoryPath string, mergeBase string, branchCommitsNewestFirst []string, fixupHashByTarget map[string]string) (gitrepo.RebaseResult, error)
	Continue(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error)
	Skip(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error)
	Abort(executionContext context.Context, repositoryPath string) error
}

// ExecutorRepositoryService exposes the repository operations the executor
// consumes directly.
type ExecutorRepositoryService interface {
	ResetHard(executionContext context.Context, repositoryPath string, revision string) error
	ApplyPatch(executionContext context.Context, repositoryPath string, patchContent string, mode gitrepo.ApplyMode) (gitrepo.ApplyResult, error)
	BatchExpandHashes(executionContext context.Context, repositoryPath string, revisions []string) (map[string]string, error)
}

// OutcomeState classifies the overall execution result.
type OutcomeState string

// Outcome states.
const (
	OutcomeStateSuccess OutcomeState = "success"
	OutcomeStateAborted OutcomeState = "aborted"
)

// Outcome is the executor's final report. An aborted outcome means the
// repository was restored to its pre-execution state.
type Outcome struct {
	State            OutcomeState
	StrategyUsed     Strategy
	Reason           string
	SkippedTargets   []string
	BackupStash      string
	StashKeptForUser bool
}

// ExecutionPlan carries everything the executor needs for one run.
type ExecutionPlan struct {
	RepositoryPath      string
	MergeBase           string
	HeadCommit          string
	BranchCommits       []string
	Patches             []patch.GeneratedPatch
	IgnoredPatchContent string
	KeepBackupStash     bool
}

// Executor runs the full squash flow for one selected strategy: backup,
// fixup construction, history rewrite, and working tree restoration.
type Executor struct {
	strategyUsed    Strategy
	repository      ExecutorRepositoryService
	backupManager   *BackupManager
	fixupBuilder    FixupBuilder
	rebaseService   RebaseService
	conflictArbiter ConflictArbiter
	logger          *zap.Logger
}

// NewExecutor builds an executor from its collaborators.
func NewExecutor(logger *zap.Logger, strategyUsed Strategy, repository ExecutorRepositoryService, backupManager *BackupManager, fixupBuilder FixupBuilder, rebaseService RebaseService, conflictArbiter ConflictArbiter) (*Executor, error) {
	if logger == nil {
		return nil, ErrExecutorLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrExecutorRepositoryNotConfigured
	}
	if backupManager == nil {
		return nil, ErrExecutorBackupNotConfigured
	}
	if fixupBuilder == nil {
		return nil, ErrExecutorFixupBuilderNotConfigured
	}
	if rebaseService == nil {
		return nil, ErrExecutorRebaseNotConfigured
	}
	if conflictArbiter == nil {
		return nil, ErrExecutorArbiterNotConfigured
	}
	return &Executor{
		strategyUsed:    strategyUsed,
		repository:      repository,
		backupManager:   backupManager,
		fixupBuilder:    fixupBuilder,
		rebaseService:   rebaseService,
		conflictArbiter: conflictArbiter,
		logger:          logger,
	}, nil
}

// Execute performs the squash. Any non-success path restores the saved HEAD
// and the stashed working tree before returning.
func (executor *Executor) Execute(executionContext context.Context, plan ExecutionPlan) (Outcome, error) {
	executor.logger.Info(executionStartedLogMessageConstant, zap.String(strategyFieldNameConstant, string(executor.strategyUsed)))

	backupState, backupError := executor.backupManager.Create(executionContext, plan.RepositoryPath)
	if backupError != nil {
		return Outcome{}, ExecutionError{Stage: ExecutionStageBackup, Cause: backupError}
	}

	fixupCommits, fixupError := executor.fixupBuilder.BuildFixupCommits(executionContext, plan.RepositoryPath, plan.HeadCommit, plan.Patches)
	if fixupError != nil {
		return executor.rollback(executionContext, plan, backupState, ExecutionStageFixup, fixupError)
	}
	if len(fixupCommits) == 0 {
		return Outcome{
			State:        OutcomeStateAborted,
			StrategyUsed: executor.strategyUsed,
			Reason:       abortedReasonNoFixupsConstant,
			BackupStash:  backupState.StashReference,
		}, nil
	}
	executor.logger.Debug(fixupsConstructedLogMessageConstant, zap.Int(fixupCountFieldNameConstant, len(fixupCommits)))

	if resetError := executor.repository.ResetHard(executionContext, plan.RepositoryPath, plan.HeadCommit); resetError != nil {
		return executor.rollback(executionContext, plan, backupState, ExecutionStagePrepare, resetError)
	}

	fixupHashByTarget := make(map[string]string, len(fixupCommits))
	for _, fixupCommit := range fixupCommits {
		fixupHashByTarget[fixupCommit.TargetCommit] = fixupCommit.CommitHash
	}

	rebaseResult, rebaseError := executor.rebaseService.Run(executionContext, plan.RepositoryPath, plan.MergeBase, plan.BranchCommits, fixupHashByTarget)
	if rebaseError != nil {
		return executor.rollback(executionContext, plan, backupState, ExecutionStageRebase, rebaseError)
	}

	var skippedTargets []string
	for rebaseResult.Outcome == gitrepo.RebaseOutcomeConflict {
		conflictReport := ConflictReport{
			TargetCommit:    executor.currentRebaseTarget(executionContext, plan.RepositoryPath),
			ConflictedFiles: rebaseResult.ConflictedFiles,
		}

		decision, decisionError := executor.conflictArbiter.DecideConflict(executionContext, conflictReport)
		if decisionError != nil {
			return executor.abortAndRollback(executionContext, plan, backupState, ExecutionStageRebase, decisionError)
		}

		switch decision {
		case ConflictDecisionContinue:
			rebaseResult, rebaseError = executor.rebaseService.Continue(executionContext, plan.RepositoryPath)
		case ConflictDecisionSkip:
			skippedTargets = append(skippedTargets, conflictReport.TargetCommit)
			rebaseResult, rebaseError = executor.rebaseService.Skip(executionContext, plan.RepositoryPath)
		default:
			if abortError := executor.rebaseService.Abort(executionContext, plan.RepositoryPath); abortError != nil {
				return executor.rollback(executionContext, plan, backupState, ExecutionStageRebase, abortError)
			}
			if restoreError := executor.backupManager.Restore(executionContext, plan.RepositoryPath, backupState); restoreError != nil {
				return Outcome{}, ExecutionError{Stage: ExecutionStageRestore, Cause: restoreError}
			}
			return Outcome{
				State:        OutcomeStateAborted,
				StrategyUsed: executor.strategyUsed,
				Reason:       abortedReasonUserConstant,
				BackupStash:  backupState.StashReference,
			}, nil
		}
		if rebaseError != nil {
			return executor.abortAndRollback(executionContext, plan, backupState, ExecutionStageRebase, rebaseError)
		}
	}

	if rebaseResult.Outcome == gitrepo.RebaseOutcomeFailed {
		return executor.abortAndRollback(executionContext, plan, backupState, ExecutionStageRebase, errors.New(abortedReasonRebaseFailedConstant+": "+rebaseResult.StandardError))
	}

	outcome := Outcome{
		State:          OutcomeStateSuccess,
		StrategyUsed:   executor.strategyUsed,
		SkippedTargets: skippedTargets,
		BackupStash:    backupState.StashReference,
	}

	if plan.KeepBackupStash {
		outcome.StashKeptForUser = true
	}

	if len(plan.IgnoredPatchContent) > 0 {
		applyResult, applyError := executor.repository.ApplyPatch(executionContext, plan.RepositoryPath, plan.IgnoredPatchContent, gitrepo.ApplyModeWorkingTree)
		if applyError != nil || !applyResult.Applied {
			outcome.StashKeptForUser = true
			executor.logger.Warn(leftoverPatchKeptLogMessageConstant, zap.String(stashReferenceFieldNameConstant, backupState.StashReference))
		}
	}

	if !outcome.StashKeptForUser {
		if discardError := executor.backupManager.Discard(executionContext, plan.RepositoryPath, backupState); discardError != nil {
			outcome.StashKeptForUser = true
		}
	}

	executor.logger.Info(executionFinishedLogMessageConstant,
		zap.String(strategyFieldNameConstant, string(executor.strategyUsed)),
		zap.String(outcomeFieldNameConstant, string(outcome.State)),
		zap.Int(skippedTargetCountFieldNameConstant, len(outcome.SkippedTargets)),
	)
	return outcome, nil
}

// currentRebaseTarget resolves the commit the paused rebase stopped on.
// Resolution failures degrade to an empty target in the report.
func (executor *Executor) currentRebaseTarget(executionContext context.Context, repositoryPath string) string {
	expandedHashes, expandError := executor.repository.BatchExpandHashes(executionContext, repositoryPath, []string{rebaseHeadRevisionConstant})
	if expandError != nil {
		return ""
	}
	return expandedHashes[rebaseHeadRevisionConstant]
}

func (executor *Executor) rollback(executionContext context.Context, plan ExecutionPlan, backupState BackupState, stage ExecutionStage, cause error) (Outcome, error) {
	if restoreError := executor.backupManager.Restore(executionContext, plan.RepositoryPath, backupState); restoreError != nil {
		return Outcome{}, ExecutionError{Stage: ExecutionStageRestore, Cause: restoreError}
	}
	return Outcome{}, ExecutionError{Stage: stage, Cause: cause}
}

func (executor *Executor) abortAndRollback(executionContext context.Context, plan ExecutionPlan, backupState BackupState, stage ExecutionStage, cause error) (Outcome, error) {
	if abortError := executor.rebaseService.Abort(executionContext, plan.RepositoryPath); abortError != nil {
		executor.logger.Warn(rebaseAbortFailedLogMessageConstant, zap.String(outcomeFieldNameConstant, string(OutcomeStateAborted)))
	}
	return executor.rollback(executionContext, plan, backupState, stage, cause)
}
