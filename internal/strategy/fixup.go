package strategy

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/patch"
)

const (
	fixupMessageTemplateConstant   = "fixup! %s"
	fixupReferenceTemplateConstant = "refs/autosquash/fixups/%s"
	scratchWorktreeRootConstant    = ".git/autosquash-worktrees"

	fixupLoggerMissingMessageConstant     = "fixup builder logger not configured"
	fixupRepositoryMissingMessageConstant = "fixup builder repository not configured"
	patchRejectedMessageTemplateConstant  = "patch for %s rejected at commit %s: %s"

	fixupCommitCreatedLogMessageConstant = "fixup commit created"
	scratchWorktreeLogMessageConstant    = "scratch worktree created"
	fixupHashFieldNameConstant           = "fixup_commit"
	targetCommitFieldNameConstant        = "target_commit"
	worktreePathFieldNameConstant        = "worktree_path"
)

// Sentinel configuration errors.
var (
	ErrFixupLoggerNotConfigured     = errors.New(fixupLoggerMissingMessageConstant)
	ErrFixupRepositoryNotConfigured = errors.New(fixupRepositoryMissingMessageConstant)
)

// PatchRejectedError reports a generated patch that git refused to apply
// against its target commit's tree.
type PatchRejectedError struct {
	TargetCommit  string
	FilePath      string
	StandardError string
}

// Error describes the rejected patch.
func (rejectedError PatchRejectedError) Error() string {
	return fmt.Sprintf(patchRejectedMessageTemplateConstant, rejectedError.FilePath, rejectedError.TargetCommit, rejectedError.StandardError)
}

// FixupRepositoryService exposes the repository operations fixup construction
// consumes.
type FixupRepositoryService interface {
	ReadTree(executionContext context.Context, repositoryPath string, revision string) error
	WriteTree(executionContext context.Context, repositoryPath string) (string, error)
	ApplyPatch(executionContext context.Context, repositoryPath string, patchContent string, mode gitrepo.ApplyMode) (gitrepo.ApplyResult, error)
	CommitTree(executionContext context.Context, repositoryPath string, treeHash string, parentHashes []string, message string) (string, error)
	UpdateRef(executionContext context.Context, repositoryPath string, referenceName string, commitHash string) error
	BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]gitrepo.CommitMetadata, error)
	WorktreeAdd(executionContext context.Context, repositoryPath string, worktreePath string, revision string) error
	WorktreeRemove(executionContext context.Context, repositoryPath string, worktreePath string) error
}

// FixupCommit is one constructed fixup commit awaiting rebase placement.
type FixupCommit struct {
	TargetCommit string
	CommitHash   string
	Message      string
}

// FixupBuilder turns generated patches into fixup commits parented on their
// target commits.
type FixupBuilder interface {
	BuildFixupCommits(executionContext context.Context, repositoryPath string, headCommit string, generatedPatches []patch.GeneratedPatch) ([]FixupCommit, error)
}

// IndexFixupBuilder builds fixup trees through the repository's own index.
// The index is restored to HEAD afterwards; the caller's backup covers
// interrupted runs.
type IndexFixupBuilder struct {
	repository FixupRepositoryService
	logger     *zap.Logger
}

// NewIndexFixupBuilder builds an index-based fixup builder.
func NewIndexFixupBuilder(logger *zap.Logger, repository FixupRepositoryService) (*IndexFixupBuilder, error) {
	if logger == nil {
		return nil, ErrFixupLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrFixupRepositoryNotConfigured
	}
	return &IndexFixupBuilder{repository: repository, logger: logger}, nil
}

// BuildFixupCommits creates one fixup commit per target commit carrying all
// of that target's generated patches.
func (builder *IndexFixupBuilder) BuildFixupCommits(executionContext context.Context, repositoryPath string, headCommit string, generatedPatches []patch.GeneratedPatch) ([]FixupCommit, error) {
	fixupCommits, buildError := buildFixupCommits(executionContext, builder.logger, builder.repository, repositoryPath, generatedPatches)

	restoreError := builder.repository.ReadTree(executionContext, repositoryPath, headCommit)
	if buildError != nil {
		return nil, buildError
	}
	if restoreError != nil {
		return nil, restoreError
	}
	return fixupCommits, nil
}

// WorktreeFixupBuilder builds fixup trees inside a scratch worktree so the
// primary index and working tree stay untouched.
type WorktreeFixupBuilder struct {
	repository FixupRepositoryService
	logger     *zap.Logger
}

// NewWorktreeFixupBuilder builds a worktree-based fixup builder.
func NewWorktreeFixupBuilder(logger *zap.Logger, repository FixupRepositoryService) (*WorktreeFixupBuilder, error) {
	if logger == nil {
		return nil, ErrFixupLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrFixupRepositoryNotConfigured
	}
	return &WorktreeFixupBuilder{repository: repository, logger: logger}, nil
}

// BuildFixupCommits creates the fixup commits inside a disposable worktree
// checked out at HEAD. The worktree is removed on every path.
func (builder *WorktreeFixupBuilder) BuildFixupCommits(executionContext context.Context, repositoryPath string, headCommit string, generatedPatches []patch.GeneratedPatch) ([]FixupCommit, error) {
	scratchPath := filepath.Join(repositoryPath, scratchWorktreeRootConstant, uuid.NewString())
	if addError := builder.repository.WorktreeAdd(executionContext, repositoryPath, scratchPath, headCommit); addError != nil {
		return nil, addError
	}
	builder.logger.Debug(scratchWorktreeLogMessageConstant, zap.String(worktreePathFieldNameConstant, scratchPath))

	fixupCommits, buildError := buildFixupCommits(executionContext, builder.logger, builder.repository, scratchPath, generatedPatches)

	removeError := builder.repository.WorktreeRemove(executionContext, repositoryPath, scratchPath)
	if buildError != nil {
		return nil, buildError
	}
	if removeError != nil {
		return nil, removeError
	}
	return fixupCommits, nil
}

type patchGroup struct {
	targetCommit string
	patches      []patch.GeneratedPatch
}

func buildFixupCommits(executionContext context.Context, logger *zap.Logger, repository FixupRepositoryService, workingPath string, generatedPatches []patch.GeneratedPatch) ([]FixupCommit, error) {
	groups := groupPatchesByTarget(generatedPatches)
	if len(groups) == 0 {
		return nil, nil
	}

	targetCommits := make([]string, 0, len(groups))
	for _, group := range groups {
		targetCommits = append(targetCommits, group.targetCommit)
	}
	metadataByHash, metadataError := repository.BatchLoadCommitMetadata(executionContext, workingPath, targetCommits)
	if metadataError != nil {
		return nil, metadataError
	}

	fixupCommits := make([]FixupCommit, 0, len(groups))
	for _, group := range groups {
		if readError := repository.ReadTree(executionContext, workingPath, group.targetCommit); readError != nil {
			return nil, readError
		}
		for _, groupPatch := range group.patches {
			applyResult, applyError := repository.ApplyPatch(executionContext, workingPath, groupPatch.PatchContent, gitrepo.ApplyModeIndex)
			if applyError != nil {
				return nil, applyError
			}
			if !applyResult.Applied {
				return nil, PatchRejectedError{
					TargetCommit:  group.targetCommit,
					FilePath:      groupPatch.FilePath,
					StandardError: applyResult.StandardError,
				}
			}
		}

		treeHash, writeError := repository.WriteTree(executionContext, workingPath)
		if writeError != nil {
			return nil, writeError
		}

		fixupMessage := fmt.Sprintf(fixupMessageTemplateConstant, metadataByHash[group.targetCommit].Subject)
		fixupHash, commitError := repository.CommitTree(executionContext, workingPath, treeHash, []string{group.targetCommit}, fixupMessage)
		if commitError != nil {
			return nil, commitError
		}

		fixupReference := fmt.Sprintf(fixupReferenceTemplateConstant, metadataByHash[group.targetCommit].ShortHash)
		if refError := repository.UpdateRef(executionContext, workingPath, fixupReference, fixupHash); refError != nil {
			return nil, refError
		}

		logger.Debug(fixupCommitCreatedLogMessageConstant,
			zap.String(targetCommitFieldNameConstant, group.targetCommit),
			zap.String(fixupHashFieldNameConstant, fixupHash),
		)
		fixupCommits = append(fixupCommits, FixupCommit{
			TargetCommit: group.targetCommit,
			CommitHash:   fixupHash,
			Message:      fixupMessage,
		})
	}
	return fixupCommits, nil
}

// groupPatchesByTarget keeps only applicable patches, grouped per target in
// first-seen order.
func groupPatchesByTarget(generatedPatches []patch.GeneratedPatch) []patchGroup {
	groupIndexByTarget := make(map[string]int)
	var groups []patchGroup
	for _, generatedPatch := range generatedPatches {
		if !generatedPatch.IsApplicable() {
			continue
		}
		groupIndex, present := groupIndexByTarget[generatedPatch.TargetCommit]
		if !present {
			groupIndex = len(groups)
			groupIndexByTarget[generatedPatch.TargetCommit] = groupIndex
			groups = append(groups, patchGroup{targetCommit: generatedPatch.TargetCommit})
		}
		groups[groupIndex].patches = append(groups[groupIndex].patches, generatedPatch)
	}
	return groups
}
