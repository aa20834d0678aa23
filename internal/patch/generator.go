package patch

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/hunks"
	"github.com/tyemirov/autosquash/internal/resolve"
)

const (
	patchContextLineCountConstant = 3

	generatorLoggerMissingMessageConstant     = "patch generator logger not configured"
	generatorRepositoryMissingMessageConstant = "patch generator repository not configured"

	unplaceableChangeLogMessageConstant = "change has no unclaimed matching line in target file"
	patchGeneratedLogMessageConstant    = "patch generated for target"
	filePathFieldNameConstant           = "file_path"
	targetCommitFieldNameConstant       = "target_commit"
	removedLineFieldNameConstant        = "removed_line"
	hunkCountFieldNameConstant          = "hunk_count"
)

// Sentinel configuration errors.
var (
	ErrGeneratorLoggerNotConfigured     = errors.New(generatorLoggerMissingMessageConstant)
	ErrGeneratorRepositoryNotConfigured = errors.New(generatorRepositoryMissingMessageConstant)
)

// FileContentService loads historical file content for patch generation.
type FileContentService interface {
	ShowFile(executionContext context.Context, repositoryPath string, revision string, filePath string) (string, error)
}

// UnplaceableChange describes a change whose removed line has no unclaimed
// match in the target commit's file state.
type UnplaceableChange struct {
	FilePath    string
	RemovedLine string
	AddedLine   string
}

// GeneratedPatch is the output for one (file, target commit) group. A patch
// with unplaceable changes carries no content; the group must not be applied.
type GeneratedPatch struct {
	FilePath           string
	TargetCommit       string
	PatchContent       string
	UnplaceableChanges []UnplaceableChange
}

// IsApplicable reports whether the patch can be handed to git apply.
func (generatedPatch GeneratedPatch) IsApplicable() bool {
	return len(generatedPatch.UnplaceableChanges) == 0 && len(generatedPatch.PatchContent) > 0
}

// Generator rewrites approved hunks against the historical file state of
// their target commits. Identical textual changes resolve to distinct
// locations through the used-line set.
type Generator struct {
	repository FileContentService
	logger     *zap.Logger
}

// NewGenerator builds a patch generator.
func NewGenerator(logger *zap.Logger, repository FileContentService) (*Generator, error) {
	if logger == nil {
		return nil, ErrGeneratorLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrGeneratorRepositoryNotConfigured
	}
	return &Generator{repository: repository, logger: logger}, nil
}

type mappingGroup struct {
	filePath     string
	targetCommit string
	mappings     []resolve.Mapping
}

// Generate produces one patch per (file, target commit) group of the approved
// mappings, ordered by file path then target commit.
func (generator *Generator) Generate(executionContext context.Context, repositoryPath string, approvedMappings []resolve.Mapping) ([]GeneratedPatch, error) {
	groups := groupMappings(approvedMappings)

	generatedPatches := make([]GeneratedPatch, 0, len(groups))
	for _, group := range groups {
		generatedPatch, generationError := generator.generateGroup(executionContext, repositoryPath, group)
		if generationError != nil {
			return nil, generationError
		}
		generatedPatches = append(generatedPatches, generatedPatch)
	}
	return generatedPatches, nil
}

func groupMappings(approvedMappings []resolve.Mapping) []mappingGroup {
	groupIndexByKey := make(map[string]int)
	var groups []mappingGroup
	for _, mapping := range approvedMappings {
		if !mapping.HasTarget() {
			continue
		}
		groupKey := mapping.Hunk.FilePath + "\x00" + mapping.TargetCommit
		groupIndex, present := groupIndexByKey[groupKey]
		if !present {
			groupIndex = len(groups)
			groupIndexByKey[groupKey] = groupIndex
			groups = append(groups, mappingGroup{filePath: mapping.Hunk.FilePath, targetCommit: mapping.TargetCommit})
		}
		groups[groupIndex].mappings = append(groups[groupIndex].mappings, mapping)
	}

	sort.SliceStable(groups, func(firstIndex int, secondIndex int) bool {
		if groups[firstIndex].filePath != groups[secondIndex].filePath {
			return groups[firstIndex].filePath < groups[secondIndex].filePath
		}
		return groups[firstIndex].targetCommit < groups[secondIndex].targetCommit
	})
	return groups
}

func (generator *Generator) generateGroup(executionContext context.Context, repositoryPath string, group mappingGroup) (GeneratedPatch, error) {
	groupKind := group.mappings[0].Hunk.Kind
	switch groupKind {
	case hunks.HunkKindNewFile:
		return GeneratedPatch{
			FilePath:     group.filePath,
			TargetCommit: group.targetCommit,
			PatchContent: renderNewFilePatch(group.filePath, group.mappings),
		}, nil
	case hunks.HunkKindDeletedFile:
		return GeneratedPatch{
			FilePath:     group.filePath,
			TargetCommit: group.targetCommit,
			PatchContent: renderDeletedFilePatch(group.filePath, group.mappings),
		}, nil
	}

	fileContent, showError := generator.repository.ShowFile(executionContext, repositoryPath, group.targetCommit, group.filePath)
	if showError != nil {
		return GeneratedPatch{}, showError
	}
	fileLines := splitFileLines(fileContent)

	usedLines := make(map[int]struct{})
	var placedEdits []lineEdit
	var unplaceableChanges []UnplaceableChange

	for _, mapping := range group.mappings {
		for _, change := range hunks.ExpandChanges(mapping.Hunk) {
			placedEdit, placed := placeChange(fileLines, usedLines, change)
			if !placed {
				unplaceableChanges = append(unplaceableChanges, UnplaceableChange{
					FilePath:    group.filePath,
					RemovedLine: change.RemovedLine,
					AddedLine:   change.AddedLine,
				})
				generator.logger.Warn(unplaceableChangeLogMessageConstant,
					zap.String(filePathFieldNameConstant, group.filePath),
					zap.String(targetCommitFieldNameConstant, group.targetCommit),
					zap.String(removedLineFieldNameConstant, strings.TrimSpace(change.RemovedLine)),
				)
				continue
			}
			placedEdits = append(placedEdits, placedEdit)
		}
	}

	if len(unplaceableChanges) > 0 {
		return GeneratedPatch{
			FilePath:           group.filePath,
			TargetCommit:       group.targetCommit,
			UnplaceableChanges: unplaceableChanges,
		}, nil
	}

	patchContent := renderEditPatch(group.filePath, fileLines, placedEdits)
	generator.logger.Debug(patchGeneratedLogMessageConstant,
		zap.String(filePathFieldNameConstant, group.filePath),
		zap.String(targetCommitFieldNameConstant, group.targetCommit),
		zap.Int(hunkCountFieldNameConstant, len(group.mappings)),
	)
	return GeneratedPatch{
		FilePath:     group.filePath,
		TargetCommit: group.targetCommit,
		PatchContent: patchContent,
	}, nil
}

// placeChange binds a change to a concrete line of the target file. Removals
// claim the lowest unclaimed strips-equal line; pure additions claim their
// context anchor the same way.
func placeChange(fileLines []string, usedLines map[int]struct{}, change hunks.Change) (lineEdit, bool) {
	if change.HasRemoval {
		chosenLine, found := lowestUnclaimedMatch(fileLines, usedLines, change.RemovedLine)
		if !found {
			return lineEdit{}, false
		}
		usedLines[chosenLine] = struct{}{}
		if change.HasAddition {
			return lineEdit{anchorLine: chosenLine, kind: editKindReplace, replacementText: change.AddedLine}, true
		}
		return lineEdit{anchorLine: chosenLine, kind: editKindDelete}, true
	}

	if len(change.ContextBefore) > 0 {
		anchorText := change.ContextBefore[len(change.ContextBefore)-1]
		chosenLine, found := lowestUnclaimedMatch(fileLines, usedLines, anchorText)
		if found {
			usedLines[chosenLine] = struct{}{}
			return lineEdit{anchorLine: chosenLine, kind: editKindInsertAfter, replacementText: change.AddedLine}, true
		}
	}
	if len(change.ContextAfter) > 0 {
		anchorText := change.ContextAfter[0]
		chosenLine, found := lowestUnclaimedMatch(fileLines, usedLines, anchorText)
		if found {
			usedLines[chosenLine] = struct{}{}
			return lineEdit{anchorLine: chosenLine, kind: editKindInsertBefore, replacementText: change.AddedLine}, true
		}
	}
	return lineEdit{}, false
}

func lowestUnclaimedMatch(fileLines []string, usedLines map[int]struct{}, wantedText string) (int, bool) {
	strippedWanted := stripComparisonWhitespace(wantedText)
	for lineIndex, fileLine := range fileLines {
		lineNumber := lineIndex + 1
		if _, claimed := usedLines[lineNumber]; claimed {
			continue
		}
		if stripComparisonWhitespace(fileLine) == strippedWanted {
			return lineNumber, true
		}
	}
	return 0, false
}

// stripComparisonWhitespace trims leading and trailing horizontal whitespace;
// internal whitespace stays significant.
func stripComparisonWhitespace(text string) string {
	return strings.Trim(text, " \t")
}

func splitFileLines(fileContent string) []string {
	if len(fileContent) == 0 {
		return nil
	}
	trimmedContent := strings.TrimSuffix(fileContent, "\n")
	return strings.Split(trimmedContent, "\n")
}
