package resolve_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/hunks"
	"github.com/tyemirov/autosquash/internal/resolve"
)

const (
	testRepositoryPathConstant  = "/tmp/repo"
	testHeadHashConstant        = "1111111111111111111111111111111111111111"
	testMergeBaseHashConstant   = "2222222222222222222222222222222222222222"
	testFirstCommitHashConstant = "3333333333333333333333333333333333333333"
	testOtherCommitHashConstant = "4444444444444444444444444444444444444444"
	testOutOfScopeHashConstant  = "5555555555555555555555555555555555555555"
	testSourceFilePathConstant  = "pkg/service.go"
	testNewFilePathConstant     = "docs/notes.txt"

	testBlameHighConfidenceCaseNameConstant = "blame_high_confidence"
	testBlameMajorityCaseNameConstant       = "blame_majority"
	testConsistencyFallbackCaseNameConstant = "consistency_fallback"
	testFileHistoryFallbackCaseNameConstant = "file_history_fallback"
	testNewFileFallbackCaseNameConstant     = "new_file_fallback"
	testBinarySkippedCaseNameConstant       = "binary_skipped"
)

type stubRepositoryService struct {
	blameLinesByRange map[int][]gitrepo.BlameLine
	metadataByHash    map[string]gitrepo.CommitMetadata
	touchingCommits   []string
	fileExists        bool
	blameCallCount    int
}

func (service *stubRepositoryService) BlameLineRanges(executionContext context.Context, repositoryPath string, revision string, filePath string, lineRanges []gitrepo.LineRange) ([]gitrepo.BlameLine, error) {
	service.blameCallCount++
	if len(lineRanges) == 0 {
		return nil, nil
	}
	return service.blameLinesByRange[lineRanges[0].StartLine], nil
}

func (service *stubRepositoryService) BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]gitrepo.CommitMetadata, error) {
	metadataByHash := make(map[string]gitrepo.CommitMetadata, len(revisions))
	for _, revision := range revisions {
		metadataByHash[revision] = service.metadataByHash[revision]
	}
	return metadataByHash, nil
}

func (service *stubRepositoryService) RevListTouchingFile(executionContext context.Context, repositoryPath string, startRevision string, endRevision string, filePath string) ([]string, error) {
	return service.touchingCommits, nil
}

func (service *stubRepositoryService) FileExistsAtRevision(executionContext context.Context, repositoryPath string, revision string, filePath string) (bool, error) {
	return service.fileExists, nil
}

func newTestResolver(testInstance *testing.T, service *stubRepositoryService) *resolve.HunkTargetResolver {
	blameEngine, blameEngineError := resolve.NewBlameEngine(zap.NewNop(), service, 16)
	require.NoError(testInstance, blameEngineError)
	fallbackProvider, fallbackError := resolve.NewFallbackTargetProvider(zap.NewNop(), service, 5)
	require.NoError(testInstance, fallbackError)
	resolver, resolverError := resolve.NewHunkTargetResolver(zap.NewNop(), service, blameEngine, fallbackProvider)
	require.NoError(testInstance, resolverError)
	return resolver
}

func textHunk(filePath string, oldStart int, oldCount int) hunks.Hunk {
	hunkLines := []hunks.ChangeLine{
		{Kind: hunks.LineKindRemoved, Content: "old line"},
		{Kind: hunks.LineKindAdded, Content: "new line"},
	}
	return hunks.Hunk{
		FilePath: filePath,
		Kind:     hunks.HunkKindText,
		OldStart: oldStart,
		OldCount: oldCount,
		NewStart: oldStart,
		NewCount: oldCount,
		Lines:    hunkLines,
	}
}

func testScope() resolve.BranchScope {
	return resolve.NewBranchScope(testMergeBaseHashConstant, testHeadHashConstant, []string{testFirstCommitHashConstant, testOtherCommitHashConstant})
}

func TestResolveBlameEvidence(testInstance *testing.T) {
	testInstance.Run(testBlameHighConfidenceCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{
			blameLinesByRange: map[int][]gitrepo.BlameLine{
				10: {
					{LineNumber: 10, CommitHash: testFirstCommitHashConstant},
					{LineNumber: 11, CommitHash: testFirstCommitHashConstant},
				},
			},
			metadataByHash: map[string]gitrepo.CommitMetadata{
				testFirstCommitHashConstant: {Hash: testFirstCommitHashConstant, AuthorTime: 1700000000},
			},
			fileExists: true,
		}
		resolver := newTestResolver(testInstance, service)

		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), []hunks.Hunk{textHunk(testSourceFilePathConstant, 10, 2)})
		require.NoError(testInstance, resolveError)
		require.Len(testInstance, result.Mappings, 1)

		mapping := result.Mappings[0]
		require.Equal(testInstance, testFirstCommitHashConstant, mapping.TargetCommit)
		require.Equal(testInstance, resolve.TargetingSourceBlameMatch, mapping.Source)
		require.Equal(testInstance, resolve.ConfidenceHigh, mapping.Confidence)
		require.False(testInstance, mapping.NeedsUserConfirmation)
	})

	testInstance.Run(testBlameMajorityCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{
			blameLinesByRange: map[int][]gitrepo.BlameLine{
				10: {
					{LineNumber: 10, CommitHash: testFirstCommitHashConstant},
					{LineNumber: 11, CommitHash: testFirstCommitHashConstant},
					{LineNumber: 12, CommitHash: testOtherCommitHashConstant},
					{LineNumber: 13, CommitHash: testOutOfScopeHashConstant},
				},
			},
			metadataByHash: map[string]gitrepo.CommitMetadata{
				testFirstCommitHashConstant: {Hash: testFirstCommitHashConstant, AuthorTime: 1700000100},
				testOtherCommitHashConstant: {Hash: testOtherCommitHashConstant, AuthorTime: 1700000000},
			},
			fileExists: true,
		}
		resolver := newTestResolver(testInstance, service)

		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), []hunks.Hunk{textHunk(testSourceFilePathConstant, 10, 4)})
		require.NoError(testInstance, resolveError)
		require.Len(testInstance, result.Mappings, 1)

		mapping := result.Mappings[0]
		require.Equal(testInstance, testFirstCommitHashConstant, mapping.TargetCommit)
		require.Equal(testInstance, resolve.ConfidenceMedium, mapping.Confidence)
		require.True(testInstance, mapping.NeedsUserConfirmation)
		require.Equal(testInstance, []string{testFirstCommitHashConstant, testOtherCommitHashConstant}, mapping.CandidateCommits)
	})
}

func TestResolveConsistencyFallback(testInstance *testing.T) {
	testInstance.Run(testConsistencyFallbackCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{
			blameLinesByRange: map[int][]gitrepo.BlameLine{
				10: {
					{LineNumber: 10, CommitHash: testFirstCommitHashConstant},
				},
			},
			metadataByHash: map[string]gitrepo.CommitMetadata{
				testFirstCommitHashConstant: {Hash: testFirstCommitHashConstant, AuthorTime: 1700000000},
			},
			fileExists: true,
		}
		resolver := newTestResolver(testInstance, service)

		hunkSet := []hunks.Hunk{
			textHunk(testSourceFilePathConstant, 10, 1),
			textHunk(testSourceFilePathConstant, 40, 1),
			textHunk(testSourceFilePathConstant, 70, 1),
		}
		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), hunkSet)
		require.NoError(testInstance, resolveError)
		require.Len(testInstance, result.Mappings, 3)

		require.Equal(testInstance, resolve.TargetingSourceBlameMatch, result.Mappings[0].Source)
		require.Equal(testInstance, resolve.ConfidenceHigh, result.Mappings[0].Confidence)

		secondMapping := result.Mappings[1]
		require.Equal(testInstance, resolve.TargetingSourceFallbackConsistency, secondMapping.Source)
		require.Equal(testInstance, testFirstCommitHashConstant, secondMapping.TargetCommit)
		require.Equal(testInstance, resolve.ConfidenceMedium, secondMapping.Confidence)
		require.True(testInstance, secondMapping.NeedsUserConfirmation)

		thirdMapping := result.Mappings[2]
		require.Equal(testInstance, resolve.TargetingSourceFallbackConsistency, thirdMapping.Source)
		require.Equal(testInstance, resolve.ConfidenceLow, thirdMapping.Confidence)
	})
}

func TestResolveFallbacks(testInstance *testing.T) {
	testInstance.Run(testFileHistoryFallbackCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{
			touchingCommits: []string{testOtherCommitHashConstant, testFirstCommitHashConstant},
			metadataByHash: map[string]gitrepo.CommitMetadata{
				testFirstCommitHashConstant: {Hash: testFirstCommitHashConstant},
				testOtherCommitHashConstant: {Hash: testOtherCommitHashConstant},
			},
			fileExists: true,
		}
		resolver := newTestResolver(testInstance, service)

		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), []hunks.Hunk{textHunk(testSourceFilePathConstant, 10, 1)})
		require.NoError(testInstance, resolveError)
		require.Len(testInstance, result.Mappings, 1)

		mapping := result.Mappings[0]
		require.Equal(testInstance, resolve.TargetingSourceFallbackFileHistory, mapping.Source)
		require.Equal(testInstance, testOtherCommitHashConstant, mapping.TargetCommit)
		require.Equal(testInstance, resolve.ConfidenceLow, mapping.Confidence)
		require.True(testInstance, mapping.NeedsUserConfirmation)
	})

	testInstance.Run(testNewFileFallbackCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{
			metadataByHash: map[string]gitrepo.CommitMetadata{
				testFirstCommitHashConstant: {Hash: testFirstCommitHashConstant},
				testOtherCommitHashConstant: {Hash: testOtherCommitHashConstant, IsMerge: true},
			},
		}
		resolver := newTestResolver(testInstance, service)

		newFileHunk := hunks.Hunk{
			FilePath: testNewFilePathConstant,
			Kind:     hunks.HunkKindNewFile,
			NewStart: 1,
			NewCount: 2,
			Lines: []hunks.ChangeLine{
				{Kind: hunks.LineKindAdded, Content: "first note"},
				{Kind: hunks.LineKindAdded, Content: "second note"},
			},
		}
		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), []hunks.Hunk{newFileHunk})
		require.NoError(testInstance, resolveError)
		require.Len(testInstance, result.Mappings, 1)

		mapping := result.Mappings[0]
		require.Equal(testInstance, resolve.TargetingSourceFallbackNewFile, mapping.Source)
		require.Equal(testInstance, testFirstCommitHashConstant, mapping.TargetCommit)
		require.Equal(testInstance, []string{testFirstCommitHashConstant, testOtherCommitHashConstant}, mapping.CandidateCommits)
		require.Zero(testInstance, service.blameCallCount)
	})

	testInstance.Run(testBinarySkippedCaseNameConstant, func(testInstance *testing.T) {
		service := &stubRepositoryService{}
		resolver := newTestResolver(testInstance, service)

		binaryHunk := hunks.Hunk{FilePath: "assets/logo.png", Kind: hunks.HunkKindBinary}
		result, resolveError := resolver.Resolve(context.Background(), testRepositoryPathConstant, testScope(), []hunks.Hunk{binaryHunk})
		require.NoError(testInstance, resolveError)
		require.Empty(testInstance, result.Mappings)
		require.Len(testInstance, result.SkippedHunks, 1)
	})
}
