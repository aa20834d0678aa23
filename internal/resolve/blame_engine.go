package resolve

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/hunks"
)

const (
	uncommittedLinesHashPrefixConstant = "0000000000000000000000000000000000000000"
	pureAdditionContextRadiusConstant  = 3
	contextualRetryRadiusConstant      = 1
	defaultBlameCacheSizeConstant      = 1024

	blameEngineLoggerMissingMessageConstant     = "blame engine logger not configured"
	blameEngineRepositoryMissingMessageConstant = "blame engine repository not configured"
	blameCacheKeyTemplateConstant               = "%s:%s:%d:%d"

	blameEmptyLogMessageConstant     = "no in-scope blame evidence for hunk"
	blameResolvedLogMessageConstant  = "blame evidence resolved hunk target"
	hunkFieldNameConstant            = "hunk"
	targetCommitFieldNameConstant    = "target_commit"
	confidenceFieldNameConstant      = "confidence"
	targetingSourceFieldNameConstant = "source"
)

// Sentinel configuration errors.
var (
	ErrBlameEngineLoggerNotConfigured     = errors.New(blameEngineLoggerMissingMessageConstant)
	ErrBlameEngineRepositoryNotConfigured = errors.New(blameEngineRepositoryMissingMessageConstant)
)

// BlameService exposes the repository operations the blame engine consumes.
type BlameService interface {
	BlameLineRanges(executionContext context.Context, repositoryPath string, revision string, filePath string, lineRanges []gitrepo.LineRange) ([]gitrepo.BlameLine, error)
	BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]gitrepo.CommitMetadata, error)
}

// BlameAnalysis captures the outcome of blame evidence evaluation for one hunk.
type BlameAnalysis struct {
	TargetCommit     string
	Source           TargetingSource
	Confidence       Confidence
	CandidateCommits []string
}

// BlameEngine evaluates blame evidence for hunks against the branch scope.
// Blame output and commit metadata are cached in bounded LRUs for the
// lifetime of one invocation.
type BlameEngine struct {
	repository    BlameService
	logger        *zap.Logger
	blameCache    *lru.Cache[string, []gitrepo.BlameLine]
	metadataCache *lru.Cache[string, gitrepo.CommitMetadata]
}

// NewBlameEngine builds a blame engine with bounded caches.
func NewBlameEngine(logger *zap.Logger, repository BlameService, cacheSize int) (*BlameEngine, error) {
	if logger == nil {
		return nil, ErrBlameEngineLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrBlameEngineRepositoryNotConfigured
	}
	if cacheSize <= 0 {
		cacheSize = defaultBlameCacheSizeConstant
	}
	blameCache, blameCacheError := lru.New[string, []gitrepo.BlameLine](cacheSize)
	if blameCacheError != nil {
		return nil, blameCacheError
	}
	metadataCache, metadataCacheError := lru.New[string, gitrepo.CommitMetadata](cacheSize)
	if metadataCacheError != nil {
		return nil, metadataCacheError
	}
	return &BlameEngine{
		repository:    repository,
		logger:        logger,
		blameCache:    blameCache,
		metadataCache: metadataCache,
	}, nil
}

// AnalyzeHunk evaluates blame evidence for a single hunk. The second return
// value reports whether any in-scope target was found; false hands the hunk to
// the fallback provider.
func (engine *BlameEngine) AnalyzeHunk(executionContext context.Context, repositoryPath string, scope BranchScope, hunk hunks.Hunk) (BlameAnalysis, bool, error) {
	primaryStart, primaryEnd := engine.primaryRange(hunk)
	if primaryStart < 1 {
		primaryStart = 1
	}
	if primaryEnd < primaryStart {
		primaryEnd = primaryStart
	}

	blamedLines, blameError := engine.blameRange(executionContext, repositoryPath, scope.HeadHash, hunk.FilePath, primaryStart, primaryEnd)
	if blameError != nil {
		return BlameAnalysis{}, false, blameError
	}

	analysis, resolved, rankError := engine.rankBlamedLines(executionContext, repositoryPath, scope, blamedLines, TargetingSourceBlameMatch)
	if rankError != nil {
		return BlameAnalysis{}, false, rankError
	}
	if resolved {
		engine.logResolution(hunk, analysis)
		return analysis, true, nil
	}

	expandedStart := primaryStart - contextualRetryRadiusConstant
	if expandedStart < 1 {
		expandedStart = 1
	}
	expandedEnd := primaryEnd + contextualRetryRadiusConstant
	expandedLines, expandedError := engine.blameRange(executionContext, repositoryPath, scope.HeadHash, hunk.FilePath, expandedStart, expandedEnd)
	if expandedError != nil {
		return BlameAnalysis{}, false, expandedError
	}

	analysis, resolved, rankError = engine.rankBlamedLines(executionContext, repositoryPath, scope, expandedLines, TargetingSourceContextualBlame)
	if rankError != nil {
		return BlameAnalysis{}, false, rankError
	}
	if resolved {
		if analysis.Confidence == ConfidenceHigh {
			analysis.Confidence = ConfidenceMedium
		}
		engine.logResolution(hunk, analysis)
		return analysis, true, nil
	}

	engine.logger.Debug(blameEmptyLogMessageConstant, zap.String(hunkFieldNameConstant, hunk.Identifier()))
	return BlameAnalysis{}, false, nil
}

// primaryRange selects the blame span: the pre-image range for hunks with
// deletions, or the surrounding context window for pure additions.
func (engine *BlameEngine) primaryRange(hunk hunks.Hunk) (int, int) {
	startLine, endLine := hunk.PreImageRange()
	if hunk.HasDeletions() {
		return startLine, endLine
	}
	return startLine - pureAdditionContextRadiusConstant, endLine + pureAdditionContextRadiusConstant
}

func (engine *BlameEngine) blameRange(executionContext context.Context, repositoryPath string, revision string, filePath string, startLine int, endLine int) ([]gitrepo.BlameLine, error) {
	cacheKey := fmt.Sprintf(blameCacheKeyTemplateConstant, revision, filePath, startLine, endLine)
	if cachedLines, cacheHit := engine.blameCache.Get(cacheKey); cacheHit {
		return cachedLines, nil
	}

	blamedLines, blameError := engine.repository.BlameLineRanges(executionContext, repositoryPath, revision, filePath, []gitrepo.LineRange{{StartLine: startLine, EndLine: endLine}})
	if blameError != nil {
		return nil, blameError
	}
	engine.blameCache.Add(cacheKey, blamedLines)
	return blamedLines, nil
}

// rankBlamedLines filters blame output to the branch scope, builds the commit
// frequency histogram, and grades the winner.
func (engine *BlameEngine) rankBlamedLines(executionContext context.Context, repositoryPath string, scope BranchScope, blamedLines []gitrepo.BlameLine, source TargetingSource) (BlameAnalysis, bool, error) {
	commitFrequencies := make(map[string]int)
	totalInScopeLines := 0
	for _, blamedLine := range blamedLines {
		if strings.HasPrefix(blamedLine.CommitHash, uncommittedLinesHashPrefixConstant) {
			continue
		}
		if !scope.Contains(blamedLine.CommitHash) {
			continue
		}
		commitFrequencies[blamedLine.CommitHash]++
		totalInScopeLines++
	}
	if totalInScopeLines == 0 {
		return BlameAnalysis{}, false, nil
	}

	candidateCommits := make([]string, 0, len(commitFrequencies))
	for commitHash := range commitFrequencies {
		candidateCommits = append(candidateCommits, commitHash)
	}

	metadataByHash, metadataError := engine.loadMetadata(executionContext, repositoryPath, candidateCommits)
	if metadataError != nil {
		return BlameAnalysis{}, false, metadataError
	}

	sort.SliceStable(candidateCommits, func(firstIndex int, secondIndex int) bool {
		firstHash := candidateCommits[firstIndex]
		secondHash := candidateCommits[secondIndex]
		if commitFrequencies[firstHash] != commitFrequencies[secondHash] {
			return commitFrequencies[firstHash] > commitFrequencies[secondHash]
		}
		return metadataByHash[firstHash].AuthorTime > metadataByHash[secondHash].AuthorTime
	})

	winnerHash := candidateCommits[0]
	winnerConfidence := ConfidenceLow
	switch {
	case commitFrequencies[winnerHash] == totalInScopeLines && len(candidateCommits) == 1:
		winnerConfidence = ConfidenceHigh
	case commitFrequencies[winnerHash]*2 > totalInScopeLines:
		winnerConfidence = ConfidenceMedium
	}

	return BlameAnalysis{
		TargetCommit:     winnerHash,
		Source:           source,
		Confidence:       winnerConfidence,
		CandidateCommits: candidateCommits,
	}, true, nil
}

func (engine *BlameEngine) loadMetadata(executionContext context.Context, repositoryPath string, commitHashes []string) (map[string]gitrepo.CommitMetadata, error) {
	metadataByHash := make(map[string]gitrepo.CommitMetadata, len(commitHashes))
	var missingHashes []string
	for _, commitHash := range commitHashes {
		if cachedMetadata, cacheHit := engine.metadataCache.Get(commitHash); cacheHit {
			metadataByHash[commitHash] = cachedMetadata
			continue
		}
		missingHashes = append(missingHashes, commitHash)
	}
	if len(missingHashes) == 0 {
		return metadataByHash, nil
	}

	loadedMetadata, loadError := engine.repository.BatchLoadCommitMetadata(executionContext, repositoryPath, missingHashes)
	if loadError != nil {
		return nil, loadError
	}
	for commitHash, commitMetadata := range loadedMetadata {
		engine.metadataCache.Add(commitHash, commitMetadata)
		metadataByHash[commitHash] = commitMetadata
	}
	return metadataByHash, nil
}

func (engine *BlameEngine) logResolution(hunk hunks.Hunk, analysis BlameAnalysis) {
	engine.logger.Debug(blameResolvedLogMessageConstant,
		zap.String(hunkFieldNameConstant, hunk.Identifier()),
		zap.String(targetCommitFieldNameConstant, analysis.TargetCommit),
		zap.String(confidenceFieldNameConstant, string(analysis.Confidence)),
		zap.String(targetingSourceFieldNameConstant, string(analysis.Source)),
	)
}
