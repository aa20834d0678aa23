package hunks_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autosquash/internal/hunks"
)

const (
	testPairedChangeCaseNameConstant    = "paired_change"
	testSurplusAdditionCaseNameConstant = "surplus_addition"
	testPureRemovalCaseNameConstant     = "pure_removal"
)

func TestExpandChanges(testInstance *testing.T) {
	testInstance.Run(testPairedChangeCaseNameConstant, func(testInstance *testing.T) {
		sourceHunk := hunks.Hunk{
			FilePath: "pkg/service.go",
			Kind:     hunks.HunkKindText,
			Lines: []hunks.ChangeLine{
				{Kind: hunks.LineKindContext, Content: "before"},
				{Kind: hunks.LineKindRemoved, Content: "old line"},
				{Kind: hunks.LineKindAdded, Content: "new line"},
				{Kind: hunks.LineKindContext, Content: "after"},
			},
		}

		expandedChanges := hunks.ExpandChanges(sourceHunk)
		require.Len(testInstance, expandedChanges, 1)
		change := expandedChanges[0]
		require.True(testInstance, change.HasRemoval)
		require.True(testInstance, change.HasAddition)
		require.Equal(testInstance, "old line", change.RemovedLine)
		require.Equal(testInstance, "new line", change.AddedLine)
		require.Equal(testInstance, []string{"before"}, change.ContextBefore)
		require.Equal(testInstance, []string{"after"}, change.ContextAfter)
	})

	testInstance.Run(testSurplusAdditionCaseNameConstant, func(testInstance *testing.T) {
		sourceHunk := hunks.Hunk{
			Lines: []hunks.ChangeLine{
				{Kind: hunks.LineKindRemoved, Content: "removed one"},
				{Kind: hunks.LineKindAdded, Content: "added one"},
				{Kind: hunks.LineKindAdded, Content: "added two"},
			},
		}

		expandedChanges := hunks.ExpandChanges(sourceHunk)
		require.Len(testInstance, expandedChanges, 2)
		require.True(testInstance, expandedChanges[0].HasRemoval)
		require.True(testInstance, expandedChanges[0].HasAddition)
		require.True(testInstance, expandedChanges[1].IsPureAddition())
		require.Equal(testInstance, "added two", expandedChanges[1].AddedLine)
	})

	testInstance.Run(testPureRemovalCaseNameConstant, func(testInstance *testing.T) {
		sourceHunk := hunks.Hunk{
			Lines: []hunks.ChangeLine{
				{Kind: hunks.LineKindContext, Content: "keep"},
				{Kind: hunks.LineKindRemoved, Content: "drop"},
			},
		}

		expandedChanges := hunks.ExpandChanges(sourceHunk)
		require.Len(testInstance, expandedChanges, 1)
		require.True(testInstance, expandedChanges[0].IsPureRemoval())
		require.Equal(testInstance, "drop", expandedChanges[0].RemovedLine)
	})
}
