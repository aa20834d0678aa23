package gitrepo

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/tyemirov/autosquash/internal/execshell"
)

const (
	gitBlameSubcommandConstant       = "blame"
	gitBlamePorcelainFlagConstant    = "--line-porcelain"
	gitBlameRangeFlagConstant        = "-L"
	gitPathSeparatorFlagConstant     = "--"
	blameRangeTemplateConstant       = "%d,%d"
	blameOperationNameConstant       = RepositoryOperationName("BlameLineRanges")
	blameRangeFieldNameConstant      = "blame range"
	blameRangeInvalidMessageConstant = "blame range must have positive start and end not before start"
	blameFilePathFieldNameConstant   = "file path"
	blameRevisionFieldNameConstant   = "revision"
)

// LineRange identifies an inclusive one-based span of lines in a file.
type LineRange struct {
	StartLine int
	EndLine   int
}

// BlameLine associates a single line with the commit that last modified it.
type BlameLine struct {
	LineNumber int
	CommitHash string
}

// BlameLineRanges blames the requested line ranges of a single file at the
// given revision using one git invocation. Overlapping ranges are allowed;
// each blamed line appears once in the result.
func (manager *RepositoryManager) BlameLineRanges(executionContext context.Context, repositoryPath string, revision string, filePath string, lineRanges []LineRange) ([]BlameLine, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}
	trimmedRevision, revisionError := requireValue(blameRevisionFieldNameConstant, revision)
	if revisionError != nil {
		return nil, revisionError
	}
	trimmedFilePath, filePathError := requireValue(blameFilePathFieldNameConstant, filePath)
	if filePathError != nil {
		return nil, filePathError
	}
	if len(lineRanges) == 0 {
		return nil, nil
	}

	commandArguments := []string{gitBlameSubcommandConstant, gitBlamePorcelainFlagConstant}
	for _, lineRange := range lineRanges {
		if lineRange.StartLine < 1 || lineRange.EndLine < lineRange.StartLine {
			return nil, InvalidRepositoryInputError{FieldName: blameRangeFieldNameConstant, Message: blameRangeInvalidMessageConstant}
		}
		commandArguments = append(commandArguments, gitBlameRangeFlagConstant, fmt.Sprintf(blameRangeTemplateConstant, lineRange.StartLine, lineRange.EndLine))
	}
	commandArguments = append(commandArguments, trimmedRevision, gitPathSeparatorFlagConstant, trimmedFilePath)

	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: blameOperationNameConstant, Cause: executionError}
	}
	if executionResult.ExitCode != 0 {
		return nil, RepositoryOperationError{
			Operation: blameOperationNameConstant,
			Cause:     fmt.Errorf("git blame exited with code %d: %s", executionResult.ExitCode, strings.TrimSpace(executionResult.StandardError)),
		}
	}

	return parseLinePorcelainOutput(executionResult.StandardOutput), nil
}

// parseLinePorcelainOutput extracts line-to-commit associations from
// git blame --line-porcelain output. Header lines for each blamed line start
// with the commit hash followed by original and final line numbers; all other
// porcelain fields and the tab-prefixed content lines are skipped.
func parseLinePorcelainOutput(output string) []BlameLine {
	var blamedLines []BlameLine
	seenLineNumbers := make(map[int]struct{})

	for _, line := range strings.Split(output, "\n") {
		if len(line) == 0 || line[0] == '\t' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if !isFullHexHash(fields[0]) {
			continue
		}
		finalLineNumber, lineNumberError := strconv.Atoi(fields[2])
		if lineNumberError != nil {
			continue
		}
		if _, alreadySeen := seenLineNumbers[finalLineNumber]; alreadySeen {
			continue
		}
		seenLineNumbers[finalLineNumber] = struct{}{}
		blamedLines = append(blamedLines, BlameLine{LineNumber: finalLineNumber, CommitHash: fields[0]})
	}
	return blamedLines
}

func isFullHexHash(candidate string) bool {
	if len(candidate) != 40 && len(candidate) != 64 {
		return false
	}
	for _, character := range candidate {
		isDigit := character >= '0' && character <= '9'
		isLowerHex := character >= 'a' && character <= 'f'
		if !isDigit && !isLowerHex {
			return false
		}
	}
	return true
}
