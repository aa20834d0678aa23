package gitrepo

import (
	"context"
	"strconv"
	"strings"

	"github.com/tyemirov/autosquash/internal/execshell"
)

const (
	gitShowNoPatchFlagConstant      = "--no-patch"
	gitMetadataFormatFlagConstant   = "--format=%H%x1f%h%x1f%at%x1f%P%x1f%s%x1e"
	metadataRecordSeparatorConstant = "\x1e"
	metadataFieldSeparatorConstant  = "\x1f"
	metadataFieldCountConstant      = 5

	loadMetadataOperationNameConstant  = RepositoryOperationName("BatchLoadCommitMetadata")
	expandHashesOperationNameConstant  = RepositoryOperationName("BatchExpandHashes")
	metadataFieldCountMessageConstant  = "unexpected commit metadata field count"
	metadataTimestampMessageConstant   = "commit metadata timestamp not numeric"
	revisionListFieldNameConstant      = "revisions"
	metadataRecordFieldNameConstant    = "metadata record"
	metadataTimestampFieldNameConstant = "author timestamp"
)

// CommitMetadata captures the per-commit fields used for target ordering and summaries.
type CommitMetadata struct {
	Hash       string
	ShortHash  string
	AuthorTime int64
	Subject    string
	IsMerge    bool
}

// BatchLoadCommitMetadata loads metadata for every requested revision with a
// single git invocation. The returned map is keyed by the revision strings as
// provided by the caller.
func (manager *RepositoryManager) BatchLoadCommitMetadata(executionContext context.Context, repositoryPath string, revisions []string) (map[string]CommitMetadata, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}

	requestedRevisions := make([]string, 0, len(revisions))
	for _, revision := range revisions {
		if trimmedRevision := strings.TrimSpace(revision); len(trimmedRevision) > 0 {
			requestedRevisions = append(requestedRevisions, trimmedRevision)
		}
	}
	if len(requestedRevisions) == 0 {
		return map[string]CommitMetadata{}, nil
	}

	commandArguments := append([]string{gitShowSubcommandConstant, gitShowNoPatchFlagConstant, gitMetadataFormatFlagConstant}, requestedRevisions...)
	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: loadMetadataOperationNameConstant, Cause: executionError}
	}

	parsedRecords, parseError := parseMetadataRecords(executionResult.StandardOutput)
	if parseError != nil {
		return nil, RepositoryOperationError{Operation: loadMetadataOperationNameConstant, Cause: parseError}
	}

	metadataByRevision := make(map[string]CommitMetadata, len(requestedRevisions))
	for index, requestedRevision := range requestedRevisions {
		if index >= len(parsedRecords) {
			break
		}
		metadataByRevision[requestedRevision] = parsedRecords[index]
	}
	return metadataByRevision, nil
}

// BatchExpandHashes resolves abbreviated revisions to their full object hashes
// with a single git invocation. Results keep the caller's revision strings as keys.
func (manager *RepositoryManager) BatchExpandHashes(executionContext context.Context, repositoryPath string, revisions []string) (map[string]string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}

	requestedRevisions := make([]string, 0, len(revisions))
	for _, revision := range revisions {
		if trimmedRevision := strings.TrimSpace(revision); len(trimmedRevision) > 0 {
			requestedRevisions = append(requestedRevisions, trimmedRevision)
		}
	}
	if len(requestedRevisions) == 0 {
		return map[string]string{}, nil
	}

	commandArguments := append([]string{gitRevParseSubcommandConstant}, requestedRevisions...)
	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: expandHashesOperationNameConstant, Cause: executionError}
	}

	resolvedHashes := splitNonEmptyLines(executionResult.StandardOutput)
	hashesByRevision := make(map[string]string, len(requestedRevisions))
	for index, requestedRevision := range requestedRevisions {
		if index >= len(resolvedHashes) {
			break
		}
		hashesByRevision[requestedRevision] = resolvedHashes[index]
	}
	return hashesByRevision, nil
}

func parseMetadataRecords(output string) ([]CommitMetadata, error) {
	records := strings.Split(output, metadataRecordSeparatorConstant)
	parsedRecords := make([]CommitMetadata, 0, len(records))
	for _, record := range records {
		trimmedRecord := strings.TrimSpace(record)
		if len(trimmedRecord) == 0 {
			continue
		}
		fields := strings.Split(trimmedRecord, metadataFieldSeparatorConstant)
		if len(fields) != metadataFieldCountConstant {
			return nil, InvalidRepositoryInputError{FieldName: metadataRecordFieldNameConstant, Message: metadataFieldCountMessageConstant}
		}
		authorTime, timestampError := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if timestampError != nil {
			return nil, InvalidRepositoryInputError{FieldName: metadataTimestampFieldNameConstant, Message: metadataTimestampMessageConstant}
		}
		parentHashes := strings.Fields(fields[3])
		parsedRecords = append(parsedRecords, CommitMetadata{
			Hash:       strings.TrimSpace(fields[0]),
			ShortHash:  strings.TrimSpace(fields[1]),
			AuthorTime: authorTime,
			Subject:    strings.TrimSpace(fields[4]),
			IsMerge:    len(parentHashes) > 1,
		})
	}
	return parsedRecords, nil
}
