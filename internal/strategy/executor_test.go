package strategy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/patch"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	testMergeBaseHashConstant   = "feedfacefeedfacefeedfacefeedfacefeedface"
	fixupCommitHashConstant     = "facefacefacefacefacefacefacefacefaceface"
	ignoredPatchContentConstant = "diff --git a/notes.txt b/notes.txt\n"
)

type stubExecutorRepository struct {
	resetRevisions   []string
	appliedPatches   []string
	applyModes       []gitrepo.ApplyMode
	applyRejected    bool
	rebaseHeadCommit string
}

func (stub *stubExecutorRepository) ResetHard(_ context.Context, _ string, revision string) error {
	stub.resetRevisions = append(stub.resetRevisions, revision)
	return nil
}

func (stub *stubExecutorRepository) ApplyPatch(_ context.Context, _ string, patchContent string, mode gitrepo.ApplyMode) (gitrepo.ApplyResult, error) {
	stub.appliedPatches = append(stub.appliedPatches, patchContent)
	stub.applyModes = append(stub.applyModes, mode)
	if stub.applyRejected {
		return gitrepo.ApplyResult{Applied: false, StandardError: "patch does not apply"}, nil
	}
	return gitrepo.ApplyResult{Applied: true}, nil
}

func (stub *stubExecutorRepository) BatchExpandHashes(_ context.Context, _ string, revisions []string) (map[string]string, error) {
	expandedHashes := make(map[string]string, len(revisions))
	for _, revision := range revisions {
		expandedHashes[revision] = stub.rebaseHeadCommit
	}
	return expandedHashes, nil
}

type stubFixupBuilder struct {
	fixupCommits []strategy.FixupCommit
	buildError   error
}

func (stub *stubFixupBuilder) BuildFixupCommits(_ context.Context, _ string, _ string, _ []patch.GeneratedPatch) ([]strategy.FixupCommit, error) {
	if stub.buildError != nil {
		return nil, stub.buildError
	}
	return stub.fixupCommits, nil
}

type stubRebaseService struct {
	runResult         gitrepo.RebaseResult
	continueResults   []gitrepo.RebaseResult
	skipResults       []gitrepo.RebaseResult
	continueCallCount int
	skipCallCount     int
	abortCallCount    int
}

func (stub *stubRebaseService) Run(_ context.Context, _ string, _ string, _ []string, _ map[string]string) (gitrepo.RebaseResult, error) {
	return stub.runResult, nil
}

func (stub *stubRebaseService) Continue(_ context.Context, _ string) (gitrepo.RebaseResult, error) {
	result := stub.continueResults[stub.continueCallCount]
	stub.continueCallCount++
	return result, nil
}

func (stub *stubRebaseService) Skip(_ context.Context, _ string) (gitrepo.RebaseResult, error) {
	result := stub.skipResults[stub.skipCallCount]
	stub.skipCallCount++
	return result, nil
}

func (stub *stubRebaseService) Abort(_ context.Context, _ string) error {
	stub.abortCallCount++
	return nil
}

type stubConflictArbiter struct {
	decisions     []strategy.ConflictDecision
	decisionIndex int
	reports       []strategy.ConflictReport
}

func (stub *stubConflictArbiter) DecideConflict(_ context.Context, report strategy.ConflictReport) (strategy.ConflictDecision, error) {
	stub.reports = append(stub.reports, report)
	decision := stub.decisions[stub.decisionIndex]
	stub.decisionIndex++
	return decision, nil
}

type executorFixture struct {
	repository    *stubExecutorRepository
	backupService *stubBackupService
	fixupBuilder  *stubFixupBuilder
	rebaseService *stubRebaseService
	arbiter       *stubConflictArbiter
	executor      *strategy.Executor
}

func newExecutorFixture(testInstance *testing.T, fixupBuilder *stubFixupBuilder, rebaseService *stubRebaseService, arbiter *stubConflictArbiter) *executorFixture {
	repository := &stubExecutorRepository{rebaseHeadCommit: firstTargetCommitConstant}
	backupService := &stubBackupService{stashHash: backupStashHashConstant}
	backupManager, backupError := strategy.NewBackupManager(zap.NewNop(), backupService)
	require.NoError(testInstance, backupError)

	executor, creationError := strategy.NewExecutor(zap.NewNop(), strategy.StrategyIndex, repository, backupManager, fixupBuilder, rebaseService, arbiter)
	require.NoError(testInstance, creationError)

	return &executorFixture{
		repository:    repository,
		backupService: backupService,
		fixupBuilder:  fixupBuilder,
		rebaseService: rebaseService,
		arbiter:       arbiter,
		executor:      executor,
	}
}

func executionPlan() strategy.ExecutionPlan {
	return strategy.ExecutionPlan{
		RepositoryPath: testRepositoryPathConstant,
		MergeBase:      testMergeBaseHashConstant,
		HeadCommit:     headCommitHashConstant,
		BranchCommits:  []string{firstTargetCommitConstant},
		Patches:        []patch.GeneratedPatch{applicablePatch("parser.go", firstTargetCommitConstant)},
	}
}

func singleFixupBuilder() *stubFixupBuilder {
	return &stubFixupBuilder{fixupCommits: []strategy.FixupCommit{
		{TargetCommit: firstTargetCommitConstant, CommitHash: fixupCommitHashConstant, Message: "fixup! add parser"},
	}}
}

func TestExecutorSuccessRestoresIgnoredChangesAndDropsStash(testInstance *testing.T) {
	rebaseService := &stubRebaseService{runResult: gitrepo.RebaseResult{Outcome: gitrepo.RebaseOutcomeCompleted}}
	fixture := newExecutorFixture(testInstance, singleFixupBuilder(), rebaseService, &stubConflictArbiter{})

	plan := executionPlan()
	plan.IgnoredPatchContent = ignoredPatchContentConstant

	outcome, executionError := fixture.executor.Execute(context.Background(), plan)
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, strategy.OutcomeStateSuccess, outcome.State)
	require.False(testInstance, outcome.StashKeptForUser)
	require.Empty(testInstance, outcome.SkippedTargets)

	require.Equal(testInstance, []string{headCommitHashConstant}, fixture.repository.resetRevisions)
	require.Equal(testInstance, []string{ignoredPatchContentConstant}, fixture.repository.appliedPatches)
	require.Equal(testInstance, []gitrepo.ApplyMode{gitrepo.ApplyModeWorkingTree}, fixture.repository.applyModes)
	require.Equal(testInstance, []string{backupStashHashConstant}, fixture.backupService.droppedStashes)
	require.Empty(testInstance, fixture.backupService.appliedStashes)
}

func TestExecutorKeepsStashWhenIgnoredChangesDoNotApply(testInstance *testing.T) {
	rebaseService := &stubRebaseService{runResult: gitrepo.RebaseResult{Outcome: gitrepo.RebaseOutcomeCompleted}}
	fixture := newExecutorFixture(testInstance, singleFixupBuilder(), rebaseService, &stubConflictArbiter{})
	fixture.repository.applyRejected = true

	plan := executionPlan()
	plan.IgnoredPatchContent = ignoredPatchContentConstant

	outcome, executionError := fixture.executor.Execute(context.Background(), plan)
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, strategy.OutcomeStateSuccess, outcome.State)
	require.True(testInstance, outcome.StashKeptForUser)
	require.Equal(testInstance, backupStashHashConstant, outcome.BackupStash)
	require.Empty(testInstance, fixture.backupService.droppedStashes)
}

func TestExecutorConflictSkipRecordsTarget(testInstance *testing.T) {
	rebaseService := &stubRebaseService{
		runResult:   gitrepo.RebaseResult{Outcome: gitrepo.RebaseOutcomeConflict, ConflictedFiles: []string{"parser.go"}},
		skipResults: []gitrepo.RebaseResult{{Outcome: gitrepo.RebaseOutcomeCompleted}},
	}
	arbiter := &stubConflictArbiter{decisions: []strategy.ConflictDecision{strategy.ConflictDecisionSkip}}
	fixture := newExecutorFixture(testInstance, singleFixupBuilder(), rebaseService, arbiter)

	outcome, executionError := fixture.executor.Execute(context.Background(), executionPlan())
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, strategy.OutcomeStateSuccess, outcome.State)
	require.Equal(testInstance, []string{firstTargetCommitConstant}, outcome.SkippedTargets)
	require.Equal(testInstance, 1, rebaseService.skipCallCount)
	require.Len(testInstance, arbiter.reports, 1)
	require.Equal(testInstance, []string{"parser.go"}, arbiter.reports[0].ConflictedFiles)
	require.Equal(testInstance, firstTargetCommitConstant, arbiter.reports[0].TargetCommit)
}

func TestExecutorConflictAbortRestoresBackup(testInstance *testing.T) {
	rebaseService := &stubRebaseService{
		runResult: gitrepo.RebaseResult{Outcome: gitrepo.RebaseOutcomeConflict, ConflictedFiles: []string{"parser.go"}},
	}
	arbiter := &stubConflictArbiter{decisions: []strategy.ConflictDecision{strategy.ConflictDecisionAbort}}
	fixture := newExecutorFixture(testInstance, singleFixupBuilder(), rebaseService, arbiter)

	outcome, executionError := fixture.executor.Execute(context.Background(), executionPlan())
	require.NoError(testInstance, executionError)
	require.Equal(testInstance, strategy.OutcomeStateAborted, outcome.State)
	require.NotEmpty(testInstance, outcome.Reason)
	require.Equal(testInstance, 1, rebaseService.abortCallCount)
	require.Equal(testInstance, []string{savedHeadHashConstant}, fixture.backupService.resetRevisions)
	require.Equal(testInstance, []string{backupStashHashConstant}, fixture.backupService.appliedStashes)
}

func TestExecutorFixupFailureRollsBack(testInstance *testing.T) {
	fixupBuilder := &stubFixupBuilder{buildError: errors.New("patch does not apply")}
	rebaseService := &stubRebaseService{}
	fixture := newExecutorFixture(testInstance, fixupBuilder, rebaseService, &stubConflictArbiter{})

	_, executionError := fixture.executor.Execute(context.Background(), executionPlan())
	require.Error(testInstance, executionError)
	var stageError strategy.ExecutionError
	require.ErrorAs(testInstance, executionError, &stageError)
	require.Equal(testInstance, strategy.ExecutionStageFixup, stageError.Stage)
	require.Equal(testInstance, []string{savedHeadHashConstant}, fixture.backupService.resetRevisions)
	require.Equal(testInstance, []string{backupStashHashConstant}, fixture.backupService.appliedStashes)
}
