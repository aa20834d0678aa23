package autosquash

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/hunks"
	"github.com/tyemirov/autosquash/internal/patch"
	"github.com/tyemirov/autosquash/internal/resolve"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	serviceLoggerMissingMessageConstant     = "service logger not configured"
	serviceRepositoryMissingMessageConstant = "service repository not configured"
	serviceResolverMissingMessageConstant   = "service resolver not configured"
	serviceGeneratorMissingMessageConstant  = "service generator not configured"
	serviceExecutionMissingMessageConstant  = "service execution coordinator not configured"
	serviceApproverMissingMessageConstant   = "service approver not configured"

	detachedHeadBranchNameConstant = "HEAD"

	repositoryArtifactTemplateConstant     = "repository %s"
	detachedHeadArtifactConstant           = "detached HEAD"
	sequencerBusyArtifactConstant          = "rebase, merge, or cherry-pick in progress"
	mixedStateArtifactConstant             = "staged and unstaged changes both present"
	emptyScopeArtifactConstant             = "no commits above merge-base"
	baseRevisionArtifactConstant           = "no base revision could be resolved"
	approvalArtifactConstant               = "approval"
	overrideArtifactTemplateConstant       = "override commit %s"
	unplaceableArtifactTemplateConstant    = "%s: %q has no unclaimed match in %.7s"
	mixedStateRecoveryNoteConstant         = "stage everything or stash the staged changes, then rerun"
	overrideOutOfScopeRecoveryNoteConstant = "override must name a commit between the merge-base and HEAD"
	approvalCancelledRecoveryNoteConstant  = "no changes were made"
	unplaceableChangeRecoveryNoteConstant  = "nothing was modified"
	patchRejectedRecoveryNoteConstant      = "repository restored from backup"
	interruptedExecutionRecoveryConstant   = "repository restored from backup"
	mixedStatePromptConstant               = "Working tree has both staged and unstaged changes.\nContinue with unstaged changes only? [y/N]: "
	noopReasonCleanTreeConstant            = "working tree clean"
	noopReasonEmptyDiffConstant            = "no changes to squash"
	noopReasonNothingApprovedConstant      = "no approved changes"

	pipelineStartedLogMessageConstant   = "autosquash pipeline started"
	pipelineFinishedLogMessageConstant  = "autosquash pipeline finished"
	hunksResolvedLogMessageConstant     = "hunk targets resolved"
	binaryChangesKeptLogMessageConstant = "binary changes detected; they stay in the backup stash"

	repositoryPathLogFieldConstant = "repository_path"
	branchLogFieldConstant         = "branch"
	mappingCountLogFieldConstant   = "mapping_count"
	skippedCountLogFieldConstant   = "skipped_hunk_count"
	approvedCountLogFieldConstant  = "approved_count"
	ignoredCountLogFieldConstant   = "ignored_count"
	outcomeLogFieldConstant        = "outcome"
)

var (
	// ErrServiceLoggerNotConfigured indicates the service was constructed without a logger.
	ErrServiceLoggerNotConfigured = errors.New(serviceLoggerMissingMessageConstant)
	// ErrServiceRepositoryNotConfigured indicates the service was constructed without a repository.
	ErrServiceRepositoryNotConfigured = errors.New(serviceRepositoryMissingMessageConstant)
	// ErrServiceResolverNotConfigured indicates the service was constructed without a resolver.
	ErrServiceResolverNotConfigured = errors.New(serviceResolverMissingMessageConstant)
	// ErrServiceGeneratorNotConfigured indicates the service was constructed without a patch generator.
	ErrServiceGeneratorNotConfigured = errors.New(serviceGeneratorMissingMessageConstant)
	// ErrServiceExecutionNotConfigured indicates the service was constructed without an execution coordinator.
	ErrServiceExecutionNotConfigured = errors.New(serviceExecutionMissingMessageConstant)
	// ErrServiceApproverNotConfigured indicates the service was constructed without an approver.
	ErrServiceApproverNotConfigured = errors.New(serviceApproverMissingMessageConstant)
)

// baseRevisionCandidates are probed in order when no base revision is configured.
var baseRevisionCandidates = []string{"@{upstream}", "origin/main", "origin/master", "main", "master"}

// RepositoryService exposes the repository operations the pipeline consumes directly.
type RepositoryService interface {
	RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error)
	GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error)
	CurrentSequencerState(executionContext context.Context, repositoryPath string) (gitrepo.SequencerState, error)
	Status(executionContext context.Context, repositoryPath string) (gitrepo.WorktreeState, error)
	HeadCommit(executionContext context.Context, repositoryPath string) (string, error)
	MergeBase(executionContext context.Context, repositoryPath string, firstRevision string, secondRevision string) (string, error)
	RevList(executionContext context.Context, repositoryPath string, startRevision string, endRevision string) ([]string, error)
	Diff(executionContext context.Context, repositoryPath string, staged bool, paths []string) (string, error)
	BatchExpandHashes(executionContext context.Context, repositoryPath string, revisions []string) (map[string]string, error)
}

// TargetResolver produces hunk-to-commit mappings for a parsed diff.
type TargetResolver interface {
	Resolve(executionContext context.Context, repositoryPath string, scope resolve.BranchScope, parsedHunks []hunks.Hunk) (resolve.ResolutionResult, error)
}

// PatchGenerator renders approved mappings into per-target patches.
type PatchGenerator interface {
	Generate(executionContext context.Context, repositoryPath string, approvedMappings []resolve.Mapping) ([]patch.GeneratedPatch, error)
}

// ExecutionService runs an execution plan under the requested strategy.
type ExecutionService interface {
	Execute(executionContext context.Context, requested strategy.Strategy, plan strategy.ExecutionPlan) (strategy.Outcome, error)
}

// ConfirmationPrompter asks the user a single yes/no question.
type ConfirmationPrompter interface {
	Confirm(prompt string) (bool, error)
}

// Options selects the behavior of one pipeline run.
type Options struct {
	RepositoryPath string
	BaseRevision   string
	LineByLine     bool
	Strategy       strategy.Strategy
}

// Report is the pipeline's user-facing summary of one run.
type Report struct {
	State            strategy.OutcomeState
	StrategyUsed     strategy.Strategy
	Reason           string
	SkippedTargets   []string
	BackupStash      string
	StashKeptForUser bool
	ApprovedCount    int
	IgnoredCount     int
}

// Service drives the full pipeline: preconditions, diff capture, parsing,
// target resolution, approval, patch generation, and strategy execution.
type Service struct {
	logger     *zap.Logger
	repository RepositoryService
	resolver   TargetResolver
	generator  PatchGenerator
	execution  ExecutionService
	approver   Approver
	prompter   ConfirmationPrompter
}

// NewService builds a Service from its collaborators. The prompter may be nil
// for non-interactive runs; a nil prompter turns mixed worktree state into a
// precondition failure.
func NewService(logger *zap.Logger, repository RepositoryService, resolver TargetResolver, generator PatchGenerator, execution ExecutionService, approver Approver, prompter ConfirmationPrompter) (*Service, error) {
	if logger == nil {
		return nil, ErrServiceLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrServiceRepositoryNotConfigured
	}
	if resolver == nil {
		return nil, ErrServiceResolverNotConfigured
	}
	if generator == nil {
		return nil, ErrServiceGeneratorNotConfigured
	}
	if execution == nil {
		return nil, ErrServiceExecutionNotConfigured
	}
	if approver == nil {
		return nil, ErrServiceApproverNotConfigured
	}
	return &Service{
		logger:     logger,
		repository: repository,
		resolver:   resolver,
		generator:  generator,
		execution:  execution,
		approver:   approver,
		prompter:   prompter,
	}, nil
}

// Execute runs the pipeline once and reports the outcome. Failures are
// returned as FlowError values carrying the taxonomy kind.
func (service *Service) Execute(executionContext context.Context, options Options) (Report, error) {
	repositoryRoot, rootError := service.repository.RepositoryRoot(executionContext, options.RepositoryPath)
	if rootError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, options.RepositoryPath), Cause: rootError}
	}

	service.logger.Debug(pipelineStartedLogMessageConstant, zap.String(repositoryPathLogFieldConstant, repositoryRoot))

	currentBranch, branchError := service.repository.GetCurrentBranch(executionContext, repositoryRoot)
	if branchError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: branchError}
	}
	if currentBranch == detachedHeadBranchNameConstant {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: detachedHeadArtifactConstant}
	}

	sequencerState, sequencerError := service.repository.CurrentSequencerState(executionContext, repositoryRoot)
	if sequencerError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: sequencerError}
	}
	if sequencerState.Busy() {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: sequencerBusyArtifactConstant}
	}

	worktreeState, statusError := service.repository.Status(executionContext, repositoryRoot)
	if statusError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: statusError}
	}
	if worktreeState == gitrepo.WorktreeStateClean {
		return Report{State: strategy.OutcomeStateSuccess, Reason: noopReasonCleanTreeConstant}, nil
	}

	useStagedDiff, stateResolutionError := service.resolveWorktreeState(worktreeState)
	if stateResolutionError != nil {
		return Report{}, stateResolutionError
	}

	headCommit, headError := service.repository.HeadCommit(executionContext, repositoryRoot)
	if headError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: headError}
	}

	mergeBase, mergeBaseError := service.resolveMergeBase(executionContext, repositoryRoot, options.BaseRevision, headCommit)
	if mergeBaseError != nil {
		return Report{}, mergeBaseError
	}

	branchCommits, revListError := service.repository.RevList(executionContext, repositoryRoot, mergeBase, headCommit)
	if revListError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: revListError}
	}
	if len(branchCommits) == 0 {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: emptyScopeArtifactConstant}
	}

	diffText, diffError := service.repository.Diff(executionContext, repositoryRoot, useStagedDiff, nil)
	if diffError != nil {
		return Report{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(repositoryArtifactTemplateConstant, repositoryRoot), Cause: diffError}
	}
	if len(strings.TrimSpace(diffText)) == 0 {
		return Report{State: strategy.OutcomeStateSuccess, Reason: noopReasonEmptyDiffConstant}, nil
	}

	parsedHunks, parseError := hunks.ParseUnifiedDiff(diffText)
	if parseError != nil {
		return Report{}, parseError
	}
	if options.LineByLine {
		parsedHunks = hunks.SplitLineByLine(parsedHunks)
	}

	branchScope := resolve.NewBranchScope(mergeBase, headCommit, branchCommits)
	resolution, resolutionError := service.resolver.Resolve(executionContext, repositoryRoot, branchScope, parsedHunks)
	if resolutionError != nil {
		return Report{}, resolutionError
	}
	service.logger.Debug(hunksResolvedLogMessageConstant,
		zap.Int(mappingCountLogFieldConstant, len(resolution.Mappings)),
		zap.Int(skippedCountLogFieldConstant, len(resolution.SkippedHunks)),
	)

	approvedMappings, ignoredHunks, decisionError := service.collectDecisions(executionContext, repositoryRoot, branchScope, resolution.Mappings)
	if decisionError != nil {
		return Report{}, decisionError
	}

	if len(approvedMappings) == 0 {
		return Report{
			State:        strategy.OutcomeStateSuccess,
			Reason:       noopReasonNothingApprovedConstant,
			IgnoredCount: len(ignoredHunks),
		}, nil
	}

	generatedPatches, generationError := service.generator.Generate(executionContext, repositoryRoot, approvedMappings)
	if generationError != nil {
		return Report{}, generationError
	}
	for _, generatedPatch := range generatedPatches {
		if len(generatedPatch.UnplaceableChanges) > 0 {
			unplaceable := generatedPatch.UnplaceableChanges[0]
			return Report{}, FlowError{
				Kind:         FailureKindUnplaceableChange,
				Artifact:     fmt.Sprintf(unplaceableArtifactTemplateConstant, generatedPatch.FilePath, unplaceable.RemovedLine, generatedPatch.TargetCommit),
				RecoveryNote: unplaceableChangeRecoveryNoteConstant,
			}
		}
	}

	binaryChangesPresent := false
	for _, skippedHunk := range resolution.SkippedHunks {
		if skippedHunk.Kind == hunks.HunkKindBinary {
			binaryChangesPresent = true
			service.logger.Warn(binaryChangesKeptLogMessageConstant, zap.String(repositoryPathLogFieldConstant, skippedHunk.FilePath))
		}
	}

	leftoverHunks := append(append([]hunks.Hunk{}, ignoredHunks...), resolution.SkippedHunks...)
	executionPlan := strategy.ExecutionPlan{
		RepositoryPath:      repositoryRoot,
		MergeBase:           mergeBase,
		HeadCommit:          headCommit,
		BranchCommits:       branchCommits,
		Patches:             generatedPatches,
		IgnoredPatchContent: hunks.RenderUnifiedDiff(leftoverHunks),
		KeepBackupStash:     binaryChangesPresent,
	}

	outcome, executionError := service.execution.Execute(executionContext, options.Strategy, executionPlan)
	if executionError != nil {
		return Report{}, classifyExecutionError(executionContext, executionError)
	}

	service.logger.Info(pipelineFinishedLogMessageConstant,
		zap.String(branchLogFieldConstant, currentBranch),
		zap.String(outcomeLogFieldConstant, string(outcome.State)),
		zap.Int(approvedCountLogFieldConstant, len(approvedMappings)),
		zap.Int(ignoredCountLogFieldConstant, len(ignoredHunks)),
	)

	return Report{
		State:            outcome.State,
		StrategyUsed:     outcome.StrategyUsed,
		Reason:           outcome.Reason,
		SkippedTargets:   outcome.SkippedTargets,
		BackupStash:      outcome.BackupStash,
		StashKeptForUser: outcome.StashKeptForUser,
		ApprovedCount:    len(approvedMappings),
		IgnoredCount:     len(ignoredHunks),
	}, nil
}

func (service *Service) resolveWorktreeState(worktreeState gitrepo.WorktreeState) (bool, error) {
	switch worktreeState {
	case gitrepo.WorktreeStateStagedOnly:
		return true, nil
	case gitrepo.WorktreeStateUnstagedOnly:
		return false, nil
	default:
	}

	if service.prompter == nil {
		return false, FlowError{Kind: FailureKindPrecondition, Artifact: mixedStateArtifactConstant, RecoveryNote: mixedStateRecoveryNoteConstant}
	}
	confirmed, promptError := service.prompter.Confirm(mixedStatePromptConstant)
	if promptError != nil {
		return false, promptError
	}
	if !confirmed {
		return false, FlowError{Kind: FailureKindPrecondition, Artifact: mixedStateArtifactConstant, RecoveryNote: mixedStateRecoveryNoteConstant}
	}
	return false, nil
}

func (service *Service) resolveMergeBase(executionContext context.Context, repositoryRoot string, configuredBase string, headCommit string) (string, error) {
	trimmedBase := strings.TrimSpace(configuredBase)
	if len(trimmedBase) > 0 {
		mergeBase, mergeBaseError := service.repository.MergeBase(executionContext, repositoryRoot, trimmedBase, headCommit)
		if mergeBaseError != nil {
			return "", FlowError{Kind: FailureKindPrecondition, Artifact: baseRevisionArtifactConstant, Cause: mergeBaseError}
		}
		return mergeBase, nil
	}

	for _, candidate := range baseRevisionCandidates {
		expandedHashes, expandError := service.repository.BatchExpandHashes(executionContext, repositoryRoot, []string{candidate})
		if expandError != nil || len(expandedHashes[candidate]) == 0 {
			continue
		}
		mergeBase, mergeBaseError := service.repository.MergeBase(executionContext, repositoryRoot, candidate, headCommit)
		if mergeBaseError != nil {
			continue
		}
		return mergeBase, nil
	}
	return "", FlowError{Kind: FailureKindPrecondition, Artifact: baseRevisionArtifactConstant}
}

func (service *Service) collectDecisions(executionContext context.Context, repositoryRoot string, branchScope resolve.BranchScope, mappings []resolve.Mapping) ([]resolve.Mapping, []hunks.Hunk, error) {
	promptableMappings := make([]resolve.Mapping, 0, len(mappings))
	ignoredHunks := make([]hunks.Hunk, 0)
	for _, mapping := range mappings {
		if !mapping.HasTarget() {
			ignoredHunks = append(ignoredHunks, mapping.Hunk)
			continue
		}
		promptableMappings = append(promptableMappings, mapping)
	}

	decisions, decisionError := service.approver.DecideMappings(executionContext, promptableMappings)
	if decisionError != nil {
		if errors.Is(decisionError, ErrApprovalCancelled) {
			return nil, nil, FlowError{Kind: FailureKindInterrupted, Artifact: approvalArtifactConstant, RecoveryNote: approvalCancelledRecoveryNoteConstant, Cause: decisionError}
		}
		return nil, nil, decisionError
	}

	approvedMappings := make([]resolve.Mapping, 0, len(promptableMappings))
	for decisionIndex, decision := range decisions {
		if decisionIndex >= len(promptableMappings) {
			break
		}
		mapping := promptableMappings[decisionIndex]
		switch decision.Kind {
		case DecisionApprove:
			approvedMappings = append(approvedMappings, mapping)
		case DecisionOverride:
			overriddenMapping, overrideError := service.applyOverride(executionContext, repositoryRoot, branchScope, mapping, decision.OverrideTarget)
			if overrideError != nil {
				return nil, nil, overrideError
			}
			approvedMappings = append(approvedMappings, overriddenMapping)
		default:
			ignoredHunks = append(ignoredHunks, mapping.Hunk)
		}
	}
	return approvedMappings, ignoredHunks, nil
}

func (service *Service) applyOverride(executionContext context.Context, repositoryRoot string, branchScope resolve.BranchScope, mapping resolve.Mapping, overrideTarget string) (resolve.Mapping, error) {
	expandedHashes, expandError := service.repository.BatchExpandHashes(executionContext, repositoryRoot, []string{overrideTarget})
	if expandError != nil || len(expandedHashes[overrideTarget]) == 0 {
		return resolve.Mapping{}, FlowError{Kind: FailureKindPrecondition, Artifact: fmt.Sprintf(overrideArtifactTemplateConstant, overrideTarget), Cause: expandError}
	}
	fullTargetHash := expandedHashes[overrideTarget]
	if !branchScope.Contains(fullTargetHash) {
		return resolve.Mapping{}, FlowError{
			Kind:         FailureKindPrecondition,
			Artifact:     fmt.Sprintf(overrideArtifactTemplateConstant, overrideTarget),
			RecoveryNote: overrideOutOfScopeRecoveryNoteConstant,
		}
	}
	mapping.TargetCommit = fullTargetHash
	mapping.Source = resolve.TargetingSourceUserOverride
	mapping.Confidence = resolve.ConfidenceHigh
	mapping.NeedsUserConfirmation = false
	return mapping, nil
}

func classifyExecutionError(executionContext context.Context, executionError error) error {
	var rejectedError strategy.PatchRejectedError
	if errors.As(executionError, &rejectedError) {
		return FlowError{
			Kind:         FailureKindPatchReject,
			Artifact:     rejectedError.FilePath,
			RecoveryNote: patchRejectedRecoveryNoteConstant,
			Cause:        executionError,
		}
	}
	if executionContext.Err() != nil {
		return FlowError{
			Kind:         FailureKindInterrupted,
			Artifact:     executionContext.Err().Error(),
			RecoveryNote: interruptedExecutionRecoveryConstant,
			Cause:        executionError,
		}
	}
	return executionError
}
