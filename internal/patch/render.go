package patch

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tyemirov/autosquash/internal/hunks"
	"github.com/tyemirov/autosquash/internal/resolve"
)

const (
	diffGitHeaderTemplateConstant = "diff --git a/%s b/%s\n"
	newFileModeHeaderConstant     = "new file mode 100644\n"
	deletedFileModeHeaderConstant = "deleted file mode 100644\n"
	oldFileHeaderTemplateConstant = "--- a/%s\n"
	newFileHeaderTemplateConstant = "+++ b/%s\n"
	devNullOldFileHeaderConstant  = "--- /dev/null\n"
	devNullNewFileHeaderConstant  = "+++ /dev/null\n"
	hunkHeaderTemplateConstant    = "@@ -%d,%d +%d,%d @@\n"
	contextLinePrefixConstant     = " "
	removedLinePrefixConstant     = "-"
	addedLinePrefixConstant       = "+"
	patchLineSeparatorConstant    = "\n"
)

type editKind int

const (
	editKindReplace editKind = iota
	editKindDelete
	editKindInsertAfter
	editKindInsertBefore
)

// lineEdit is a placed change bound to a concrete line of the target file
// state. anchorLine is one-based.
type lineEdit struct {
	anchorLine      int
	kind            editKind
	replacementText string
}

type renderSpan struct {
	startLine int
	endLine   int
	edits     []lineEdit
}

// renderEditPatch renders the placed edits as a unified diff against the
// target file state. Edits whose context windows overlap or abut share one
// hunk.
func renderEditPatch(filePath string, fileLines []string, placedEdits []lineEdit) string {
	orderedEdits := make([]lineEdit, len(placedEdits))
	copy(orderedEdits, placedEdits)
	sort.SliceStable(orderedEdits, func(firstIndex int, secondIndex int) bool {
		return orderedEdits[firstIndex].anchorLine < orderedEdits[secondIndex].anchorLine
	})

	spans := mergeEditSpans(orderedEdits, len(fileLines))

	var patchBuilder strings.Builder
	fmt.Fprintf(&patchBuilder, diffGitHeaderTemplateConstant, filePath, filePath)
	fmt.Fprintf(&patchBuilder, oldFileHeaderTemplateConstant, filePath)
	fmt.Fprintf(&patchBuilder, newFileHeaderTemplateConstant, filePath)

	cumulativeLineDelta := 0
	for _, span := range spans {
		bodyLines, oldLineCount, newLineCount := renderSpanBody(fileLines, span)
		newStartLine := span.startLine + cumulativeLineDelta
		fmt.Fprintf(&patchBuilder, hunkHeaderTemplateConstant, span.startLine, oldLineCount, newStartLine, newLineCount)
		for _, bodyLine := range bodyLines {
			patchBuilder.WriteString(bodyLine)
			patchBuilder.WriteString(patchLineSeparatorConstant)
		}
		cumulativeLineDelta += newLineCount - oldLineCount
	}
	return patchBuilder.String()
}

// mergeEditSpans computes each edit's context window and merges windows that
// overlap or abut into single hunk spans.
func mergeEditSpans(orderedEdits []lineEdit, fileLineCount int) []renderSpan {
	var spans []renderSpan
	for _, placedEdit := range orderedEdits {
		startLine := placedEdit.anchorLine - patchContextLineCountConstant
		if startLine < 1 {
			startLine = 1
		}
		endLine := placedEdit.anchorLine + patchContextLineCountConstant
		if endLine > fileLineCount {
			endLine = fileLineCount
		}

		if len(spans) > 0 && startLine <= spans[len(spans)-1].endLine+1 {
			lastSpan := &spans[len(spans)-1]
			if endLine > lastSpan.endLine {
				lastSpan.endLine = endLine
			}
			lastSpan.edits = append(lastSpan.edits, placedEdit)
			continue
		}
		spans = append(spans, renderSpan{startLine: startLine, endLine: endLine, edits: []lineEdit{placedEdit}})
	}
	return spans
}

func renderSpanBody(fileLines []string, span renderSpan) ([]string, int, int) {
	editByLine := make(map[int]lineEdit, len(span.edits))
	for _, placedEdit := range span.edits {
		editByLine[placedEdit.anchorLine] = placedEdit
	}

	var bodyLines []string
	oldLineCount := 0
	newLineCount := 0
	for lineNumber := span.startLine; lineNumber <= span.endLine; lineNumber++ {
		fileLine := fileLines[lineNumber-1]
		placedEdit, edited := editByLine[lineNumber]
		if !edited {
			bodyLines = append(bodyLines, contextLinePrefixConstant+fileLine)
			oldLineCount++
			newLineCount++
			continue
		}

		switch placedEdit.kind {
		case editKindReplace:
			bodyLines = append(bodyLines, removedLinePrefixConstant+fileLine)
			bodyLines = append(bodyLines, addedLinePrefixConstant+placedEdit.replacementText)
			oldLineCount++
			newLineCount++
		case editKindDelete:
			bodyLines = append(bodyLines, removedLinePrefixConstant+fileLine)
			oldLineCount++
		case editKindInsertBefore:
			bodyLines = append(bodyLines, addedLinePrefixConstant+placedEdit.replacementText)
			bodyLines = append(bodyLines, contextLinePrefixConstant+fileLine)
			oldLineCount++
			newLineCount += 2
		case editKindInsertAfter:
			bodyLines = append(bodyLines, contextLinePrefixConstant+fileLine)
			bodyLines = append(bodyLines, addedLinePrefixConstant+placedEdit.replacementText)
			oldLineCount++
			newLineCount += 2
		}
	}
	return bodyLines, oldLineCount, newLineCount
}

// renderNewFilePatch emits the whole-file addition patch for a new-file group.
func renderNewFilePatch(filePath string, mappings []resolve.Mapping) string {
	var addedLines []string
	for _, mapping := range mappings {
		for _, changeLine := range mapping.Hunk.Lines {
			if changeLine.Kind == hunks.LineKindAdded {
				addedLines = append(addedLines, changeLine.Content)
			}
		}
	}

	var patchBuilder strings.Builder
	fmt.Fprintf(&patchBuilder, diffGitHeaderTemplateConstant, filePath, filePath)
	patchBuilder.WriteString(newFileModeHeaderConstant)
	patchBuilder.WriteString(devNullOldFileHeaderConstant)
	fmt.Fprintf(&patchBuilder, newFileHeaderTemplateConstant, filePath)
	fmt.Fprintf(&patchBuilder, hunkHeaderTemplateConstant, 0, 0, 1, len(addedLines))
	for _, addedLine := range addedLines {
		patchBuilder.WriteString(addedLinePrefixConstant + addedLine + patchLineSeparatorConstant)
	}
	return patchBuilder.String()
}

// renderDeletedFilePatch emits the whole-file removal patch for a deleted-file
// group.
func renderDeletedFilePatch(filePath string, mappings []resolve.Mapping) string {
	var removedLines []string
	for _, mapping := range mappings {
		for _, changeLine := range mapping.Hunk.Lines {
			if changeLine.Kind == hunks.LineKindRemoved {
				removedLines = append(removedLines, changeLine.Content)
			}
		}
	}

	var patchBuilder strings.Builder
	fmt.Fprintf(&patchBuilder, diffGitHeaderTemplateConstant, filePath, filePath)
	patchBuilder.WriteString(deletedFileModeHeaderConstant)
	fmt.Fprintf(&patchBuilder, oldFileHeaderTemplateConstant, filePath)
	patchBuilder.WriteString(devNullNewFileHeaderConstant)
	fmt.Fprintf(&patchBuilder, hunkHeaderTemplateConstant, 1, len(removedLines), 0, 0)
	for _, removedLine := range removedLines {
		patchBuilder.WriteString(removedLinePrefixConstant + removedLine + patchLineSeparatorConstant)
	}
	return patchBuilder.String()
}
