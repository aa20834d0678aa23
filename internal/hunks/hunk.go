package hunks

import "fmt"

const (
	hunkKindTextStringConstant        = "text"
	hunkKindBinaryStringConstant      = "binary"
	hunkKindNewFileStringConstant     = "new_file"
	hunkKindDeletedFileStringConstant = "deleted_file"
	hunkKindModeOnlyStringConstant    = "mode_only"

	lineKindContextStringConstant = "context"
	lineKindRemovedStringConstant = "removed"
	lineKindAddedStringConstant   = "added"

	hunkIdentifierTemplateConstant = "%s:%d"
)

// HunkKind tags the variant of a parsed hunk.
type HunkKind string

// Supported hunk kinds.
const (
	HunkKindText        HunkKind = HunkKind(hunkKindTextStringConstant)
	HunkKindBinary      HunkKind = HunkKind(hunkKindBinaryStringConstant)
	HunkKindNewFile     HunkKind = HunkKind(hunkKindNewFileStringConstant)
	HunkKindDeletedFile HunkKind = HunkKind(hunkKindDeletedFileStringConstant)
	HunkKindModeOnly    HunkKind = HunkKind(hunkKindModeOnlyStringConstant)
)

// LineKind tags a single change line inside a hunk.
type LineKind string

// Supported change line kinds.
const (
	LineKindContext LineKind = LineKind(lineKindContextStringConstant)
	LineKindRemoved LineKind = LineKind(lineKindRemovedStringConstant)
	LineKindAdded   LineKind = LineKind(lineKindAddedStringConstant)
)

// ChangeLine is one line of a hunk body with its change tag. Content excludes
// the leading diff marker character.
type ChangeLine struct {
	Kind    LineKind
	Content string
}

// Hunk is a contiguous change region in one file of a unified diff.
type Hunk struct {
	FilePath     string
	PreviousPath string
	Kind         HunkKind
	OldStart     int
	OldCount     int
	NewStart     int
	NewCount     int
	Lines        []ChangeLine
}

// Identifier renders a stable human-readable handle for reports and prompts.
func (hunk Hunk) Identifier() string {
	return fmt.Sprintf(hunkIdentifierTemplateConstant, hunk.FilePath, hunk.NewStart)
}

// HasDeletions reports whether the hunk removes any pre-image lines.
func (hunk Hunk) HasDeletions() bool {
	for _, changeLine := range hunk.Lines {
		if changeLine.Kind == LineKindRemoved {
			return true
		}
	}
	return false
}

// HasAdditions reports whether the hunk introduces any post-image lines.
func (hunk Hunk) HasAdditions() bool {
	for _, changeLine := range hunk.Lines {
		if changeLine.Kind == LineKindAdded {
			return true
		}
	}
	return false
}

// IsPureAddition reports whether the hunk only adds lines.
func (hunk Hunk) IsPureAddition() bool {
	return hunk.HasAdditions() && !hunk.HasDeletions()
}

// PreImageRange reports the inclusive one-based line span the hunk occupies in
// the pre-image file. Pure additions return the insertion anchor with a zero
// length span collapsed onto the preceding line.
func (hunk Hunk) PreImageRange() (int, int) {
	if hunk.OldCount == 0 {
		anchorLine := hunk.OldStart
		if anchorLine < 1 {
			anchorLine = 1
		}
		return anchorLine, anchorLine
	}
	return hunk.OldStart, hunk.OldStart + hunk.OldCount - 1
}

// ContentLineCount reports how many non-context lines the hunk carries.
func (hunk Hunk) ContentLineCount() int {
	contentLines := 0
	for _, changeLine := range hunk.Lines {
		if changeLine.Kind != LineKindContext {
			contentLines++
		}
	}
	return contentLines
}
