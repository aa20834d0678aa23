package resolve

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
)

const (
	defaultRecentCommitLimitConstant = 5

	fallbackLoggerMissingMessageConstant     = "fallback provider logger not configured"
	fallbackRepositoryMissingMessageConstant = "fallback provider repository not configured"

	fallbackFileHistoryLogMessageConstant = "offering file history fallback candidates"
	fallbackRecentLogMessageConstant      = "offering recent branch commits as fallback candidates"
	filePathFieldNameConstant             = "file_path"
	candidateCountFieldNameConstant       = "candidate_count"
)

// Sentinel configuration errors.
var (
	ErrFallbackLoggerNotConfigured     = errors.New(fallbackLoggerMissingMessageConstant)
	ErrFallbackRepositoryNotConfigured = errors.New(fallbackRepositoryMissingMessageConstant)
)

// FallbackService exposes the repository operations the fallback provider consumes.
type FallbackService interface {
	RevListTouchingFile(executionContext context.Context, repositoryPath string, startRevision string, endRevision string, filePath string) ([]string, error)
	BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]gitrepo.CommitMetadata, error)
}

// FallbackTargetProvider proposes candidate targets when blame yields no
// in-scope evidence.
type FallbackTargetProvider struct {
	repository        FallbackService
	logger            *zap.Logger
	recentCommitLimit int
}

// NewFallbackTargetProvider builds a fallback provider.
func NewFallbackTargetProvider(logger *zap.Logger, repository FallbackService, recentCommitLimit int) (*FallbackTargetProvider, error) {
	if logger == nil {
		return nil, ErrFallbackLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrFallbackRepositoryNotConfigured
	}
	if recentCommitLimit <= 0 {
		recentCommitLimit = defaultRecentCommitLimitConstant
	}
	return &FallbackTargetProvider{
		repository:        repository,
		logger:            logger,
		recentCommitLimit: recentCommitLimit,
	}, nil
}

// RecentBranchCandidates offers the most recent branch commits for files
// without blame history, ordering merge commits after regular commits.
func (provider *FallbackTargetProvider) RecentBranchCandidates(executionContext context.Context, repositoryPath string, scope BranchScope) ([]string, error) {
	if scope.IsEmpty() {
		return nil, nil
	}

	metadataByHash, metadataError := provider.repository.BatchLoadCommitMetadata(executionContext, repositoryPath, scope.Commits)
	if metadataError != nil {
		return nil, metadataError
	}

	var regularCommits []string
	var mergeCommits []string
	for _, commitHash := range scope.Commits {
		if metadataByHash[commitHash].IsMerge {
			mergeCommits = append(mergeCommits, commitHash)
			continue
		}
		regularCommits = append(regularCommits, commitHash)
	}

	orderedCandidates := append(regularCommits, mergeCommits...)
	if len(orderedCandidates) > provider.recentCommitLimit {
		orderedCandidates = orderedCandidates[:provider.recentCommitLimit]
	}

	provider.logger.Debug(fallbackRecentLogMessageConstant, zap.Int(candidateCountFieldNameConstant, len(orderedCandidates)))
	return orderedCandidates, nil
}

// FileHistoryCandidates offers the in-scope commits that touched the file,
// most recent first.
func (provider *FallbackTargetProvider) FileHistoryCandidates(executionContext context.Context, repositoryPath string, scope BranchScope, filePath string) ([]string, error) {
	if scope.IsEmpty() {
		return nil, nil
	}

	touchingCommits, historyError := provider.repository.RevListTouchingFile(executionContext, repositoryPath, scope.MergeBase, scope.HeadHash, filePath)
	if historyError != nil {
		return nil, historyError
	}

	var inScopeCommits []string
	for _, commitHash := range touchingCommits {
		if scope.Contains(commitHash) {
			inScopeCommits = append(inScopeCommits, commitHash)
		}
	}

	provider.logger.Debug(fallbackFileHistoryLogMessageConstant,
		zap.String(filePathFieldNameConstant, filePath),
		zap.Int(candidateCountFieldNameConstant, len(inScopeCommits)),
	)
	return inScopeCommits, nil
}
