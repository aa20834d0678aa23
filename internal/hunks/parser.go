package hunks

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	diffFileHeaderPrefixConstant        = "diff --git "
	diffOldModeHeaderPrefixConstant     = "old mode "
	diffNewModeHeaderPrefixConstant     = "new mode "
	diffNewFileHeaderPrefixConstant     = "new file mode "
	diffDeletedFileHeaderPrefixConstant = "deleted file mode "
	diffBinaryMarkerPrefixConstant      = "Binary files "
	diffGitBinaryPatchPrefixConstant    = "GIT binary patch"
	diffOldFileHeaderPrefixConstant     = "--- "
	diffNewFileLineHeaderPrefixConstant = "+++ "
	diffHunkHeaderPrefixConstant        = "@@ "
	diffNoNewlineMarkerPrefixConstant   = "\\ "
	diffOldPathPrefixConstant           = "a/"
	diffNewPathPrefixConstant           = "b/"
	diffDevNullPathConstant             = "/dev/null"
	diffRemovedMarkerConstant           = '-'
	diffAddedMarkerConstant             = '+'
	diffContextMarkerConstant           = ' '

	hunkHeaderFormatMessageConstant  = "malformed hunk header"
	fileHeaderFormatMessageConstant  = "malformed file header"
	hunkOutsideFileMessageConstant   = "hunk encountered before file header"
	hunkHeaderRangeSeparatorConstant = ","
	hunkHeaderFieldSeparatorConstant = " "
)

// DiffParseError reports a malformed diff input line.
type DiffParseError struct {
	LineNumber int
	Message    string
}

// Error describes the parse failure with its input line number.
func (parseError DiffParseError) Error() string {
	return fmt.Sprintf("%s at diff line %d", parseError.Message, parseError.LineNumber)
}

type fileSection struct {
	filePath      string
	previousPath  string
	isNewFile     bool
	isDeleted     bool
	isBinary      bool
	hasModeChange bool
	hunks         []Hunk
}

// ParseUnifiedDiff parses git unified diff text into structured hunks. File
// sections without content hunks surface as single mode-only or binary hunks
// so callers can report and skip them.
func ParseUnifiedDiff(diffText string) ([]Hunk, error) {
	if len(strings.TrimSpace(diffText)) == 0 {
		return nil, nil
	}

	var parsedHunks []Hunk
	var currentSection *fileSection
	var currentHunk *Hunk

	flushHunk := func() {
		if currentHunk != nil && currentSection != nil {
			currentSection.hunks = append(currentSection.hunks, *currentHunk)
		}
		currentHunk = nil
	}
	flushSection := func() {
		flushHunk()
		if currentSection == nil {
			return
		}
		parsedHunks = append(parsedHunks, materializeSection(*currentSection)...)
		currentSection = nil
	}

	diffLines := strings.Split(diffText, "\n")
	for lineIndex, diffLine := range diffLines {
		lineNumber := lineIndex + 1

		switch {
		case strings.HasPrefix(diffLine, diffFileHeaderPrefixConstant):
			flushSection()
			oldPath, newPath, headerError := parseFileHeaderPaths(diffLine)
			if headerError != nil {
				return nil, DiffParseError{LineNumber: lineNumber, Message: fileHeaderFormatMessageConstant}
			}
			currentSection = &fileSection{filePath: newPath, previousPath: oldPath}

		case strings.HasPrefix(diffLine, diffHunkHeaderPrefixConstant):
			if currentSection == nil {
				return nil, DiffParseError{LineNumber: lineNumber, Message: hunkOutsideFileMessageConstant}
			}
			flushHunk()
			oldStart, oldCount, newStart, newCount, headerError := parseHunkHeader(diffLine)
			if headerError != nil {
				return nil, DiffParseError{LineNumber: lineNumber, Message: hunkHeaderFormatMessageConstant}
			}
			currentHunk = &Hunk{
				OldStart: oldStart,
				OldCount: oldCount,
				NewStart: newStart,
				NewCount: newCount,
			}

		case currentSection != nil && currentHunk == nil:
			switch {
			case strings.HasPrefix(diffLine, diffNewFileHeaderPrefixConstant):
				currentSection.isNewFile = true
			case strings.HasPrefix(diffLine, diffDeletedFileHeaderPrefixConstant):
				currentSection.isDeleted = true
			case strings.HasPrefix(diffLine, diffOldModeHeaderPrefixConstant), strings.HasPrefix(diffLine, diffNewModeHeaderPrefixConstant):
				currentSection.hasModeChange = true
			case strings.HasPrefix(diffLine, diffBinaryMarkerPrefixConstant), strings.HasPrefix(diffLine, diffGitBinaryPatchPrefixConstant):
				currentSection.isBinary = true
			case strings.HasPrefix(diffLine, diffOldFileHeaderPrefixConstant):
				if headerPath := parseFileLinePath(diffLine, diffOldFileHeaderPrefixConstant, diffOldPathPrefixConstant); len(headerPath) > 0 {
					currentSection.previousPath = headerPath
				}
			case strings.HasPrefix(diffLine, diffNewFileLineHeaderPrefixConstant):
				if headerPath := parseFileLinePath(diffLine, diffNewFileLineHeaderPrefixConstant, diffNewPathPrefixConstant); len(headerPath) > 0 {
					currentSection.filePath = headerPath
				}
			}

		case currentHunk != nil:
			if strings.HasPrefix(diffLine, diffNoNewlineMarkerPrefixConstant) {
				continue
			}
			if len(diffLine) == 0 {
				if lineIndex == len(diffLines)-1 {
					continue
				}
				currentHunk.Lines = append(currentHunk.Lines, ChangeLine{Kind: LineKindContext, Content: ""})
				continue
			}
			switch diffLine[0] {
			case diffRemovedMarkerConstant:
				currentHunk.Lines = append(currentHunk.Lines, ChangeLine{Kind: LineKindRemoved, Content: diffLine[1:]})
			case diffAddedMarkerConstant:
				currentHunk.Lines = append(currentHunk.Lines, ChangeLine{Kind: LineKindAdded, Content: diffLine[1:]})
			case diffContextMarkerConstant:
				currentHunk.Lines = append(currentHunk.Lines, ChangeLine{Kind: LineKindContext, Content: diffLine[1:]})
			default:
				flushHunk()
			}
		}
	}

	flushSection()
	return parsedHunks, nil
}

func materializeSection(section fileSection) []Hunk {
	filePath := section.filePath
	if section.isDeleted && len(section.previousPath) > 0 {
		filePath = section.previousPath
	}

	if section.isBinary {
		return []Hunk{{FilePath: filePath, PreviousPath: section.previousPath, Kind: HunkKindBinary}}
	}
	if len(section.hunks) == 0 {
		if section.hasModeChange {
			return []Hunk{{FilePath: filePath, PreviousPath: section.previousPath, Kind: HunkKindModeOnly}}
		}
		return nil
	}

	hunkKind := HunkKindText
	if section.isNewFile {
		hunkKind = HunkKindNewFile
	}
	if section.isDeleted {
		hunkKind = HunkKindDeletedFile
	}

	materializedHunks := make([]Hunk, 0, len(section.hunks))
	for _, sectionHunk := range section.hunks {
		sectionHunk.FilePath = filePath
		sectionHunk.PreviousPath = section.previousPath
		sectionHunk.Kind = hunkKind
		materializedHunks = append(materializedHunks, sectionHunk)
	}
	return materializedHunks
}

func parseFileHeaderPaths(headerLine string) (string, string, error) {
	headerRemainder := strings.TrimPrefix(headerLine, diffFileHeaderPrefixConstant)
	headerFields := strings.SplitN(headerRemainder, hunkHeaderFieldSeparatorConstant, 2)
	if len(headerFields) != 2 {
		return "", "", errors.New(fileHeaderFormatMessageConstant)
	}
	oldPath := strings.TrimPrefix(strings.TrimSpace(headerFields[0]), diffOldPathPrefixConstant)
	newPath := strings.TrimPrefix(strings.TrimSpace(headerFields[1]), diffNewPathPrefixConstant)
	if len(oldPath) == 0 || len(newPath) == 0 {
		return "", "", errors.New(fileHeaderFormatMessageConstant)
	}
	return oldPath, newPath, nil
}

func parseFileLinePath(headerLine string, headerPrefix string, pathPrefix string) string {
	headerRemainder := strings.TrimSpace(strings.TrimPrefix(headerLine, headerPrefix))
	if headerRemainder == diffDevNullPathConstant {
		return ""
	}
	return strings.TrimPrefix(headerRemainder, pathPrefix)
}

func parseHunkHeader(headerLine string) (int, int, int, int, error) {
	headerRemainder := strings.TrimPrefix(headerLine, diffHunkHeaderPrefixConstant)
	closingIndex := strings.Index(headerRemainder, " @@")
	if closingIndex < 0 {
		return 0, 0, 0, 0, errors.New(hunkHeaderFormatMessageConstant)
	}
	rangeFields := strings.Fields(headerRemainder[:closingIndex])
	if len(rangeFields) != 2 || !strings.HasPrefix(rangeFields[0], "-") || !strings.HasPrefix(rangeFields[1], "+") {
		return 0, 0, 0, 0, errors.New(hunkHeaderFormatMessageConstant)
	}

	oldStart, oldCount, oldError := parseRangeField(rangeFields[0][1:])
	if oldError != nil {
		return 0, 0, 0, 0, oldError
	}
	newStart, newCount, newError := parseRangeField(rangeFields[1][1:])
	if newError != nil {
		return 0, 0, 0, 0, newError
	}
	return oldStart, oldCount, newStart, newCount, nil
}

func parseRangeField(rangeField string) (int, int, error) {
	rangeParts := strings.SplitN(rangeField, hunkHeaderRangeSeparatorConstant, 2)
	startValue, startError := strconv.Atoi(rangeParts[0])
	if startError != nil {
		return 0, 0, startError
	}
	lengthValue := 1
	if len(rangeParts) == 2 {
		parsedLength, lengthError := strconv.Atoi(rangeParts[1])
		if lengthError != nil {
			return 0, 0, lengthError
		}
		lengthValue = parsedLength
	}
	return startValue, lengthValue, nil
}
