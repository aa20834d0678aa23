package hunks

// Change is the atomic retargeting unit extracted from a hunk: one removed
// line paired with its replacement, a pure insertion, or a pure deletion.
type Change struct {
	RemovedLine   string
	AddedLine     string
	HasRemoval    bool
	HasAddition   bool
	ContextBefore []string
	ContextAfter  []string
}

// IsPureAddition reports whether the change only inserts a line.
func (change Change) IsPureAddition() bool {
	return change.HasAddition && !change.HasRemoval
}

// IsPureRemoval reports whether the change only deletes a line.
func (change Change) IsPureRemoval() bool {
	return change.HasRemoval && !change.HasAddition
}

// ExpandChanges decomposes a hunk into ordered changes. Within each run of
// removals followed by additions, lines pair index-wise; the longer side's
// surplus becomes pure removals or pure insertions. Context lines surrounding
// the run attach to every change extracted from it.
func ExpandChanges(hunk Hunk) []Change {
	var expandedChanges []Change

	lineCount := len(hunk.Lines)
	lineIndex := 0
	for lineIndex < lineCount {
		if hunk.Lines[lineIndex].Kind == LineKindContext {
			lineIndex++
			continue
		}

		runStart := lineIndex
		var removedLines []string
		for lineIndex < lineCount && hunk.Lines[lineIndex].Kind == LineKindRemoved {
			removedLines = append(removedLines, hunk.Lines[lineIndex].Content)
			lineIndex++
		}
		var addedLines []string
		for lineIndex < lineCount && hunk.Lines[lineIndex].Kind == LineKindAdded {
			addedLines = append(addedLines, hunk.Lines[lineIndex].Content)
			lineIndex++
		}

		contextBefore := trailingContext(hunk.Lines, runStart)
		contextAfter := leadingContext(hunk.Lines, lineIndex)

		pairCount := len(removedLines)
		if len(addedLines) > pairCount {
			pairCount = len(addedLines)
		}
		for pairIndex := 0; pairIndex < pairCount; pairIndex++ {
			change := Change{ContextBefore: contextBefore, ContextAfter: contextAfter}
			if pairIndex < len(removedLines) {
				change.RemovedLine = removedLines[pairIndex]
				change.HasRemoval = true
			}
			if pairIndex < len(addedLines) {
				change.AddedLine = addedLines[pairIndex]
				change.HasAddition = true
			}
			expandedChanges = append(expandedChanges, change)
		}
	}

	return expandedChanges
}

func trailingContext(changeLines []ChangeLine, runStart int) []string {
	var contextLines []string
	for contextIndex := runStart - 1; contextIndex >= 0 && changeLines[contextIndex].Kind == LineKindContext; contextIndex-- {
		contextLines = append([]string{changeLines[contextIndex].Content}, contextLines...)
	}
	return contextLines
}

func leadingContext(changeLines []ChangeLine, runEnd int) []string {
	var contextLines []string
	for contextIndex := runEnd; contextIndex < len(changeLines) && changeLines[contextIndex].Kind == LineKindContext; contextIndex++ {
		contextLines = append(contextLines, changeLines[contextIndex].Content)
	}
	return contextLines
}
