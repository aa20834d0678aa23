package rebase

import (
	"context"
	"errors"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
)

const (
	todoFileNamePatternConstant   = "autosquash-todo-*.txt"
	hookModifiedIndicatorConstant = "pre-commit hook"

	orchestratorLoggerMissingMessageConstant     = "rebase orchestrator logger not configured"
	orchestratorRepositoryMissingMessageConstant = "rebase orchestrator repository not configured"

	rebaseStartedLogMessageConstant  = "todo rebase started"
	rebaseFinishedLogMessageConstant = "todo rebase finished"
	hookRetryLogMessageConstant      = "restaging after hook modified files"
	mergeBaseFieldNameConstant       = "merge_base"
	commitCountFieldNameConstant     = "commit_count"
	fixupCountFieldNameConstant      = "fixup_count"
	rebaseOutcomeFieldNameConstant   = "outcome"
	conflictedFilesFieldNameConstant = "conflicted_files"
)

// Sentinel configuration errors.
var (
	ErrOrchestratorLoggerNotConfigured     = errors.New(orchestratorLoggerMissingMessageConstant)
	ErrOrchestratorRepositoryNotConfigured = errors.New(orchestratorRepositoryMissingMessageConstant)
)

// RepositoryService exposes the repository operations the orchestrator consumes.
type RepositoryService interface {
	BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]gitrepo.CommitMetadata, error)
	RebaseWithTodo(executionContext context.Context, repositoryPath string, upstreamRevision string, todoFilePath string) (gitrepo.RebaseResult, error)
	RebaseContinue(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error)
	RebaseSkip(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error)
	RebaseAbort(executionContext context.Context, repositoryPath string) error
	StageAll(executionContext context.Context, repositoryPath string) error
}

// Orchestrator drives the todo-based interactive rebase that folds the fixup
// commits into their targets.
type Orchestrator struct {
	repository RepositoryService
	logger     *zap.Logger
}

// NewOrchestrator builds a rebase orchestrator.
func NewOrchestrator(logger *zap.Logger, repository RepositoryService) (*Orchestrator, error) {
	if logger == nil {
		return nil, ErrOrchestratorLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrOrchestratorRepositoryNotConfigured
	}
	return &Orchestrator{repository: repository, logger: logger}, nil
}

// Run generates the todo list for the branch commits and their fixups and
// starts the rebase from the merge base.
func (orchestrator *Orchestrator) Run(executionContext context.Context, repositoryPath string, mergeBase string, branchCommitsNewestFirst []string, fixupHashByTarget map[string]string) (gitrepo.RebaseResult, error) {
	metadataByHash, metadataError := orchestrator.repository.BatchLoadCommitMetadata(executionContext, repositoryPath, branchCommitsNewestFirst)
	if metadataError != nil {
		return gitrepo.RebaseResult{}, metadataError
	}

	commitsOldestFirst := make([]TodoCommit, 0, len(branchCommitsNewestFirst))
	for commitIndex := len(branchCommitsNewestFirst) - 1; commitIndex >= 0; commitIndex-- {
		commitHash := branchCommitsNewestFirst[commitIndex]
		commitMetadata := metadataByHash[commitHash]
		commitsOldestFirst = append(commitsOldestFirst, TodoCommit{
			Hash:      commitHash,
			ShortHash: commitMetadata.ShortHash,
			Subject:   commitMetadata.Subject,
		})
	}

	todoContent := BuildTodo(commitsOldestFirst, fixupHashByTarget)
	todoFilePath, writeError := writeTodoFile(todoContent)
	if writeError != nil {
		return gitrepo.RebaseResult{}, writeError
	}
	defer os.Remove(todoFilePath)

	orchestrator.logger.Info(rebaseStartedLogMessageConstant,
		zap.String(mergeBaseFieldNameConstant, mergeBase),
		zap.Int(commitCountFieldNameConstant, len(commitsOldestFirst)),
		zap.Int(fixupCountFieldNameConstant, len(fixupHashByTarget)),
	)

	rebaseResult, rebaseError := orchestrator.repository.RebaseWithTodo(executionContext, repositoryPath, mergeBase, todoFilePath)
	if rebaseError != nil {
		return gitrepo.RebaseResult{}, rebaseError
	}
	orchestrator.logResult(rebaseResult)
	return rebaseResult, nil
}

// Continue resumes a paused rebase. When the continuation fails because a
// pre-commit hook rewrote files, the modified files are staged and the
// continuation retried once; a second failure is reported as a conflict so
// the caller can continue, skip or abort.
func (orchestrator *Orchestrator) Continue(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error) {
	rebaseResult, continueError := orchestrator.repository.RebaseContinue(executionContext, repositoryPath)
	if continueError != nil {
		return gitrepo.RebaseResult{}, continueError
	}
	if rebaseResult.Outcome != gitrepo.RebaseOutcomeFailed || !strings.Contains(rebaseResult.StandardError, hookModifiedIndicatorConstant) {
		orchestrator.logResult(rebaseResult)
		return rebaseResult, nil
	}

	orchestrator.logger.Warn(hookRetryLogMessageConstant)
	if stageError := orchestrator.repository.StageAll(executionContext, repositoryPath); stageError != nil {
		return gitrepo.RebaseResult{}, stageError
	}
	rebaseResult, continueError = orchestrator.repository.RebaseContinue(executionContext, repositoryPath)
	if continueError != nil {
		return gitrepo.RebaseResult{}, continueError
	}
	if rebaseResult.Outcome == gitrepo.RebaseOutcomeFailed {
		rebaseResult.Outcome = gitrepo.RebaseOutcomeConflict
	}
	orchestrator.logResult(rebaseResult)
	return rebaseResult, nil
}

// Skip drops the paused todo entry and resumes the rebase.
func (orchestrator *Orchestrator) Skip(executionContext context.Context, repositoryPath string) (gitrepo.RebaseResult, error) {
	rebaseResult, skipError := orchestrator.repository.RebaseSkip(executionContext, repositoryPath)
	if skipError != nil {
		return gitrepo.RebaseResult{}, skipError
	}
	orchestrator.logResult(rebaseResult)
	return rebaseResult, nil
}

// Abort cancels the in-progress rebase.
func (orchestrator *Orchestrator) Abort(executionContext context.Context, repositoryPath string) error {
	return orchestrator.repository.RebaseAbort(executionContext, repositoryPath)
}

func (orchestrator *Orchestrator) logResult(rebaseResult gitrepo.RebaseResult) {
	orchestrator.logger.Info(rebaseFinishedLogMessageConstant,
		zap.String(rebaseOutcomeFieldNameConstant, string(rebaseResult.Outcome)),
		zap.Strings(conflictedFilesFieldNameConstant, rebaseResult.ConflictedFiles),
	)
}

func writeTodoFile(todoContent string) (string, error) {
	todoFile, createError := os.CreateTemp("", todoFileNamePatternConstant)
	if createError != nil {
		return "", createError
	}
	if _, writeError := todoFile.WriteString(todoContent); writeError != nil {
		todoFile.Close()
		os.Remove(todoFile.Name())
		return "", writeError
	}
	if closeError := todoFile.Close(); closeError != nil {
		os.Remove(todoFile.Name())
		return "", closeError
	}
	return todoFile.Name(), nil
}
