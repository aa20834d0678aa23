package resolve

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/hunks"
)

const (
	resolverLoggerMissingMessageConstant      = "hunk target resolver logger not configured"
	resolverBlameEngineMissingMessageConstant = "hunk target resolver blame engine not configured"
	resolverFallbackMissingMessageConstant    = "hunk target resolver fallback provider not configured"
	resolverRepositoryMissingMessageConstant  = "hunk target resolver repository not configured"

	binaryHunkSkippedLogMessageConstant   = "binary file change skipped"
	modeOnlyHunkSkippedLogMessageConstant = "mode-only change skipped"
	noCandidateLogMessageConstant         = "no candidate target for hunk"
)

// Sentinel configuration errors.
var (
	ErrResolverLoggerNotConfigured      = errors.New(resolverLoggerMissingMessageConstant)
	ErrResolverBlameEngineNotConfigured = errors.New(resolverBlameEngineMissingMessageConstant)
	ErrResolverFallbackNotConfigured    = errors.New(resolverFallbackMissingMessageConstant)
	ErrResolverRepositoryNotConfigured  = errors.New(resolverRepositoryMissingMessageConstant)
)

// ResolverService exposes the repository operations the resolver consumes directly.
type ResolverService interface {
	FileExistsAtRevision(executionContext context.Context, repositoryPath string, revision string, filePath string) (bool, error)
}

// ResolutionResult is the resolver's complete answer for one diff.
type ResolutionResult struct {
	Mappings     []Mapping
	SkippedHunks []hunks.Hunk
}

// HunkTargetResolver combines blame evidence and fallback candidates into the
// final hunk-to-commit mappings handed to the approval flow.
type HunkTargetResolver struct {
	repository        ResolverService
	blameEngine       *BlameEngine
	fallbackProvider  *FallbackTargetProvider
	logger            *zap.Logger
	consistencyByFile map[string]*fileConsistencyEntry
}

// NewHunkTargetResolver builds a resolver from its collaborators.
func NewHunkTargetResolver(logger *zap.Logger, repository ResolverService, blameEngine *BlameEngine, fallbackProvider *FallbackTargetProvider) (*HunkTargetResolver, error) {
	if logger == nil {
		return nil, ErrResolverLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrResolverRepositoryNotConfigured
	}
	if blameEngine == nil {
		return nil, ErrResolverBlameEngineNotConfigured
	}
	if fallbackProvider == nil {
		return nil, ErrResolverFallbackNotConfigured
	}
	return &HunkTargetResolver{
		repository:        repository,
		blameEngine:       blameEngine,
		fallbackProvider:  fallbackProvider,
		logger:            logger,
		consistencyByFile: make(map[string]*fileConsistencyEntry),
	}, nil
}

type fileConsistencyEntry struct {
	targetCommit string
	reuseCount   int
}

// Resolve maps every parsed hunk to a target commit proposal. Hunks are
// processed in file-then-line order; binary and mode-only hunks are reported
// and skipped.
func (resolver *HunkTargetResolver) Resolve(executionContext context.Context, repositoryPath string, scope BranchScope, parsedHunks []hunks.Hunk) (ResolutionResult, error) {
	orderedHunks := make([]hunks.Hunk, len(parsedHunks))
	copy(orderedHunks, parsedHunks)
	sort.SliceStable(orderedHunks, func(firstIndex int, secondIndex int) bool {
		if orderedHunks[firstIndex].FilePath != orderedHunks[secondIndex].FilePath {
			return orderedHunks[firstIndex].FilePath < orderedHunks[secondIndex].FilePath
		}
		return orderedHunks[firstIndex].NewStart < orderedHunks[secondIndex].NewStart
	})

	result := ResolutionResult{}

	for _, orderedHunk := range orderedHunks {
		switch orderedHunk.Kind {
		case hunks.HunkKindBinary:
			resolver.logger.Warn(binaryHunkSkippedLogMessageConstant, zap.String(filePathFieldNameConstant, orderedHunk.FilePath))
			result.SkippedHunks = append(result.SkippedHunks, orderedHunk)
			continue
		case hunks.HunkKindModeOnly:
			resolver.logger.Warn(modeOnlyHunkSkippedLogMessageConstant, zap.String(filePathFieldNameConstant, orderedHunk.FilePath))
			result.SkippedHunks = append(result.SkippedHunks, orderedHunk)
			continue
		}

		mapping, mappingError := resolver.resolveHunk(executionContext, repositoryPath, scope, orderedHunk)
		if mappingError != nil {
			return ResolutionResult{}, mappingError
		}
		result.Mappings = append(result.Mappings, mapping)

		if mapping.HasTarget() && mapping.Source == TargetingSourceBlameMatch && mapping.Confidence == ConfidenceHigh {
			if _, present := resolver.consistencyByFile[orderedHunk.FilePath]; !present {
				resolver.consistencyByFile[orderedHunk.FilePath] = &fileConsistencyEntry{targetCommit: mapping.TargetCommit}
			}
		}
	}

	return result, nil
}

// RecordConfirmedTarget feeds a user-confirmed target back so later
// resolutions of the same file offer it as the consistency default.
func (resolver *HunkTargetResolver) RecordConfirmedTarget(filePath string, targetCommit string) {
	resolver.consistencyByFile[filePath] = &fileConsistencyEntry{targetCommit: targetCommit}
}

func (resolver *HunkTargetResolver) resolveHunk(executionContext context.Context, repositoryPath string, scope BranchScope, candidateHunk hunks.Hunk) (Mapping, error) {
	if candidateHunk.Kind != hunks.HunkKindNewFile {
		analysis, resolved, blameError := resolver.blameEngine.AnalyzeHunk(executionContext, repositoryPath, scope, candidateHunk)
		if blameError != nil {
			return Mapping{}, blameError
		}
		if resolved {
			return Mapping{
				Hunk:                  candidateHunk,
				TargetCommit:          analysis.TargetCommit,
				Source:                analysis.Source,
				Confidence:            analysis.Confidence,
				NeedsUserConfirmation: analysis.Confidence != ConfidenceHigh,
				CandidateCommits:      analysis.CandidateCommits,
			}, nil
		}
	}

	if consistencyEntry, present := resolver.consistencyByFile[candidateHunk.FilePath]; present {
		consistencyConfidence := ConfidenceMedium
		if consistencyEntry.reuseCount > 0 {
			consistencyConfidence = ConfidenceLow
		}
		consistencyEntry.reuseCount++
		return Mapping{
			Hunk:                  candidateHunk,
			TargetCommit:          consistencyEntry.targetCommit,
			Source:                TargetingSourceFallbackConsistency,
			Confidence:            consistencyConfidence,
			NeedsUserConfirmation: true,
			CandidateCommits:      []string{consistencyEntry.targetCommit},
		}, nil
	}

	return resolver.fallbackMapping(executionContext, repositoryPath, scope, candidateHunk)
}

func (resolver *HunkTargetResolver) fallbackMapping(executionContext context.Context, repositoryPath string, scope BranchScope, candidateHunk hunks.Hunk) (Mapping, error) {
	fileExists := candidateHunk.Kind != hunks.HunkKindNewFile
	if fileExists {
		existsAtHead, existenceError := resolver.repository.FileExistsAtRevision(executionContext, repositoryPath, scope.HeadHash, candidateHunk.FilePath)
		if existenceError != nil {
			return Mapping{}, existenceError
		}
		fileExists = existsAtHead
	}

	if fileExists {
		historyCandidates, historyError := resolver.fallbackProvider.FileHistoryCandidates(executionContext, repositoryPath, scope, candidateHunk.FilePath)
		if historyError != nil {
			return Mapping{}, historyError
		}
		if len(historyCandidates) > 0 {
			return Mapping{
				Hunk:                  candidateHunk,
				TargetCommit:          historyCandidates[0],
				Source:                TargetingSourceFallbackFileHistory,
				Confidence:            ConfidenceLow,
				NeedsUserConfirmation: true,
				CandidateCommits:      historyCandidates,
			}, nil
		}
	}

	recentCandidates, recentError := resolver.fallbackProvider.RecentBranchCandidates(executionContext, repositoryPath, scope)
	if recentError != nil {
		return Mapping{}, recentError
	}
	if len(recentCandidates) == 0 {
		resolver.logger.Warn(noCandidateLogMessageConstant, zap.String(hunkFieldNameConstant, candidateHunk.Identifier()))
		return Mapping{Hunk: candidateHunk, NeedsUserConfirmation: true}, nil
	}

	targetingSource := TargetingSourceFallbackRecent
	if candidateHunk.Kind == hunks.HunkKindNewFile {
		targetingSource = TargetingSourceFallbackNewFile
	}
	return Mapping{
		Hunk:                  candidateHunk,
		TargetCommit:          recentCandidates[0],
		Source:                targetingSource,
		Confidence:            ConfidenceLow,
		NeedsUserConfirmation: true,
		CandidateCommits:      recentCandidates,
	}, nil
}
