package hunks

import (
	"fmt"
	"strings"
)

const (
	renderFileHeaderTemplateConstant    = "diff --git a/%s b/%s\n"
	renderOldFileHeaderTemplateConstant = "--- a/%s\n"
	renderNewFileHeaderTemplateConstant = "+++ b/%s\n"
	renderHunkHeaderTemplateConstant    = "@@ -%d,%d +%d,%d @@\n"
	renderDevNullOldHeaderConstant      = "--- /dev/null\n"
	renderDevNullNewHeaderConstant      = "+++ /dev/null\n"
	renderContextMarkerConstant         = " "
	renderRemovedMarkerConstant         = "-"
	renderAddedMarkerConstant           = "+"
)

// RenderUnifiedDiff serializes the provided hunks back into unified diff text
// suitable for git apply. Hunks are emitted in input order and grouped under
// one file header per contiguous run of the same file path. Binary and
// mode-only hunks carry no reproducible body and are skipped.
func RenderUnifiedDiff(renderedHunks []Hunk) string {
	var builder strings.Builder
	previousFilePath := ""
	for _, renderedHunk := range renderedHunks {
		if renderedHunk.Kind == HunkKindBinary || renderedHunk.Kind == HunkKindModeOnly {
			continue
		}
		if renderedHunk.FilePath != previousFilePath {
			writeFileHeader(&builder, renderedHunk)
			previousFilePath = renderedHunk.FilePath
		}
		fmt.Fprintf(&builder, renderHunkHeaderTemplateConstant, renderedHunk.OldStart, renderedHunk.OldCount, renderedHunk.NewStart, renderedHunk.NewCount)
		for _, changeLine := range renderedHunk.Lines {
			switch changeLine.Kind {
			case LineKindRemoved:
				builder.WriteString(renderRemovedMarkerConstant)
			case LineKindAdded:
				builder.WriteString(renderAddedMarkerConstant)
			default:
				builder.WriteString(renderContextMarkerConstant)
			}
			builder.WriteString(changeLine.Content)
			builder.WriteString("\n")
		}
	}
	return builder.String()
}

func writeFileHeader(builder *strings.Builder, renderedHunk Hunk) {
	fmt.Fprintf(builder, renderFileHeaderTemplateConstant, renderedHunk.FilePath, renderedHunk.FilePath)
	switch renderedHunk.Kind {
	case HunkKindNewFile:
		builder.WriteString(renderDevNullOldHeaderConstant)
		fmt.Fprintf(builder, renderNewFileHeaderTemplateConstant, renderedHunk.FilePath)
	case HunkKindDeletedFile:
		fmt.Fprintf(builder, renderOldFileHeaderTemplateConstant, renderedHunk.FilePath)
		builder.WriteString(renderDevNullNewHeaderConstant)
	default:
		fmt.Fprintf(builder, renderOldFileHeaderTemplateConstant, renderedHunk.FilePath)
		fmt.Fprintf(builder, renderNewFileHeaderTemplateConstant, renderedHunk.FilePath)
	}
}
