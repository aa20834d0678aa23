package hunks

const splitContextLineLimitConstant = 3

// SplitLineByLine rewrites each text hunk so that every output hunk carries a
// single removal+addition pair, pure addition, or pure removal, keeping up to
// three surrounding context lines. Non-text hunks pass through unchanged.
func SplitLineByLine(parsedHunks []Hunk) []Hunk {
	var splitHunks []Hunk
	for _, parsedHunk := range parsedHunks {
		if parsedHunk.Kind != HunkKindText || parsedHunk.ContentLineCount() <= 1 {
			splitHunks = append(splitHunks, parsedHunk)
			continue
		}
		splitHunks = append(splitHunks, splitSingleHunk(parsedHunk)...)
	}
	return splitHunks
}

type positionedLine struct {
	changeLine ChangeLine
	oldLine    int
	newLine    int
}

func splitSingleHunk(sourceHunk Hunk) []Hunk {
	positionedLines := annotatePositions(sourceHunk)

	var resultHunks []Hunk
	lineCount := len(positionedLines)
	lineIndex := 0
	for lineIndex < lineCount {
		if positionedLines[lineIndex].changeLine.Kind == LineKindContext {
			lineIndex++
			continue
		}

		runStart := lineIndex
		for lineIndex < lineCount && positionedLines[lineIndex].changeLine.Kind == LineKindRemoved {
			lineIndex++
		}
		removedEnd := lineIndex
		for lineIndex < lineCount && positionedLines[lineIndex].changeLine.Kind == LineKindAdded {
			lineIndex++
		}
		addedEnd := lineIndex

		removedRun := positionedLines[runStart:removedEnd]
		addedRun := positionedLines[removedEnd:addedEnd]

		pairCount := len(removedRun)
		if len(addedRun) > pairCount {
			pairCount = len(addedRun)
		}
		for pairIndex := 0; pairIndex < pairCount; pairIndex++ {
			var pairLines []positionedLine
			if pairIndex < len(removedRun) {
				pairLines = append(pairLines, removedRun[pairIndex])
			}
			if pairIndex < len(addedRun) {
				pairLines = append(pairLines, addedRun[pairIndex])
			}
			resultHunks = append(resultHunks, buildSplitHunk(sourceHunk, positionedLines, runStart, addedEnd, pairLines))
		}
	}

	if len(resultHunks) == 0 {
		return []Hunk{sourceHunk}
	}
	return resultHunks
}

// annotatePositions assigns pre-image and post-image line numbers to every
// line of the hunk body. Removed lines advance only the old counter, added
// lines only the new counter.
func annotatePositions(sourceHunk Hunk) []positionedLine {
	positionedLines := make([]positionedLine, 0, len(sourceHunk.Lines))
	oldLine := sourceHunk.OldStart
	newLine := sourceHunk.NewStart
	for _, changeLine := range sourceHunk.Lines {
		annotated := positionedLine{changeLine: changeLine, oldLine: oldLine, newLine: newLine}
		switch changeLine.Kind {
		case LineKindContext:
			oldLine++
			newLine++
		case LineKindRemoved:
			oldLine++
		case LineKindAdded:
			newLine++
		}
		positionedLines = append(positionedLines, annotated)
	}
	return positionedLines
}

func buildSplitHunk(sourceHunk Hunk, positionedLines []positionedLine, runStart int, runEnd int, pairLines []positionedLine) Hunk {
	var contextBefore []positionedLine
	for contextIndex := runStart - 1; contextIndex >= 0 && positionedLines[contextIndex].changeLine.Kind == LineKindContext && len(contextBefore) < splitContextLineLimitConstant; contextIndex-- {
		contextBefore = append([]positionedLine{positionedLines[contextIndex]}, contextBefore...)
	}
	var contextAfter []positionedLine
	for contextIndex := runEnd; contextIndex < len(positionedLines) && positionedLines[contextIndex].changeLine.Kind == LineKindContext && len(contextAfter) < splitContextLineLimitConstant; contextIndex++ {
		contextAfter = append(contextAfter, positionedLines[contextIndex])
	}

	bodyLines := make([]ChangeLine, 0, len(contextBefore)+len(pairLines)+len(contextAfter))
	oldCount := 0
	newCount := 0
	appendLine := func(annotated positionedLine) {
		bodyLines = append(bodyLines, annotated.changeLine)
		switch annotated.changeLine.Kind {
		case LineKindContext:
			oldCount++
			newCount++
		case LineKindRemoved:
			oldCount++
		case LineKindAdded:
			newCount++
		}
	}
	for _, annotated := range contextBefore {
		appendLine(annotated)
	}
	for _, annotated := range pairLines {
		appendLine(annotated)
	}
	for _, annotated := range contextAfter {
		appendLine(annotated)
	}

	oldStart := pairLines[0].oldLine
	newStart := pairLines[0].newLine
	if len(contextBefore) > 0 {
		oldStart = contextBefore[0].oldLine
		newStart = contextBefore[0].newLine
	}
	if oldCount == 0 {
		oldStart = pairLines[0].oldLine - 1
		if oldStart < 0 {
			oldStart = 0
		}
	}

	return Hunk{
		FilePath:     sourceHunk.FilePath,
		PreviousPath: sourceHunk.PreviousPath,
		Kind:         sourceHunk.Kind,
		OldStart:     oldStart,
		OldCount:     oldCount,
		NewStart:     newStart,
		NewCount:     newCount,
		Lines:        bodyLines,
	}
}
