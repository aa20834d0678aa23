package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tyemirov/autosquash/internal/execshell"
)

const (
	gitStatusSubcommandConstant            = "status"
	gitStatusPorcelainFlagConstant         = "--porcelain"
	gitRevParseSubcommandConstant          = "rev-parse"
	gitAbbrevRefFlagConstant               = "--abbrev-ref"
	gitShowTopLevelFlagConstant            = "--show-toplevel"
	gitVerifyFlagConstant                  = "--verify"
	gitQuietFlagConstant                   = "--quiet"
	gitHeadReferenceConstant               = "HEAD"
	gitMergeBaseSubcommandConstant         = "merge-base"
	gitIsAncestorFlagConstant              = "--is-ancestor"
	gitRevListSubcommandConstant           = "rev-list"
	gitDiffSubcommandConstant              = "diff"
	gitDiffCachedFlagConstant              = "--cached"
	gitDiffNameOnlyFlagConstant            = "--name-only"
	gitDiffUnmergedFilterFlagConstant      = "--diff-filter=U"
	gitDiffNoColorFlagConstant             = "--no-color"
	gitDiffContextFlagConstant             = "-U3"
	gitShowSubcommandConstant              = "show"
	gitCatFileSubcommandConstant           = "cat-file"
	gitCatFileExistsFlagConstant           = "-e"
	gitStashSubcommandConstant             = "stash"
	gitStashCreateSubcommandConstant       = "create"
	gitStashStoreSubcommandConstant        = "store"
	gitStashApplySubcommandConstant        = "apply"
	gitStashDropSubcommandConstant         = "drop"
	gitStashPushSubcommandConstant         = "push"
	gitStashMessageFlagConstant            = "-m"
	gitStashIncludeUntrackedFlagConstant   = "--include-untracked"
	gitWorktreeSubcommandConstant          = "worktree"
	gitWorktreeAddSubcommandConstant       = "add"
	gitWorktreeRemoveSubcommandConstant    = "remove"
	gitWorktreeDetachFlagConstant          = "--detach"
	gitWorktreeForceFlagConstant           = "--force"
	gitApplySubcommandConstant             = "apply"
	gitApplyCheckFlagConstant              = "--check"
	gitApplyCachedFlagConstant             = "--cached"
	gitApplyWhitespaceFlagConstant         = "--whitespace=nowarn"
	gitReadTreeSubcommandConstant          = "read-tree"
	gitWriteTreeSubcommandConstant         = "write-tree"
	gitCommitTreeSubcommandConstant        = "commit-tree"
	gitCommitTreeParentFlagConstant        = "-p"
	gitCommitTreeMessageFlagConstant       = "-m"
	gitUpdateRefSubcommandConstant         = "update-ref"
	gitResetSubcommandConstant             = "reset"
	gitResetHardFlagConstant               = "--hard"
	gitAddSubcommandConstant               = "add"
	gitAddAllPathSpecConstant              = "."
	gitCommitSubcommandConstant            = "commit"
	gitCommitAmendFlagConstant             = "--amend"
	gitCommitNoEditFlagConstant            = "--no-edit"
	gitRebaseSubcommandConstant            = "rebase"
	gitRebaseInteractiveFlagConstant       = "--interactive"
	gitRebaseContinueFlagConstant          = "--continue"
	gitRebaseAbortFlagConstant             = "--abort"
	gitRebaseSkipFlagConstant              = "--skip"
	gitReflogSubcommandConstant            = "reflog"
	gitReflogShowSubcommandConstant        = "show"
	gitReflogSelectorFormatFlagConstant    = "--format=%gd"
	gitSingleEntryFlagConstant             = "-1"
	gitPathspecSeparatorConstant           = "--"
	gitRebaseHeadReferenceConstant         = "REBASE_HEAD"
	gitMergeHeadReferenceConstant          = "MERGE_HEAD"
	gitCherryPickHeadReferenceConstant     = "CHERRY_PICK_HEAD"
	gitSequenceEditorVariableConstant      = "GIT_SEQUENCE_EDITOR"
	gitEditorVariableConstant              = "GIT_EDITOR"
	gitEditorTrueCommandConstant           = "true"
	repositoryPathFieldNameConstant        = "repository_path"
	revisionFieldNameConstant              = "revision"
	referenceFieldNameConstant             = "reference"
	filePathFieldNameConstant              = "file_path"
	patchContentFieldNameConstant          = "patch_content"
	stashReferenceFieldNameConstant        = "stash_reference"
	worktreePathFieldNameConstant          = "worktree_path"
	treeHashFieldNameConstant              = "tree_hash"
	messageFieldNameConstant               = "message"
	requiredValueMessageConstant           = "value required"
	executorNotConfiguredMessageConstant   = "git executor not configured"
	repositoryOperationErrorTemplate       = "%s operation failed"
	repositoryOperationErrorCauseTemplate  = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant = "%s: %s"

	statusOperationNameConstant          = RepositoryOperationName("WorktreeStatus")
	currentBranchOperationNameConstant   = RepositoryOperationName("GetCurrentBranch")
	repositoryRootOperationNameConstant  = RepositoryOperationName("RepositoryRoot")
	headCommitOperationNameConstant      = RepositoryOperationName("HeadCommit")
	mergeBaseOperationNameConstant       = RepositoryOperationName("MergeBase")
	revListOperationNameConstant         = RepositoryOperationName("RevList")
	diffOperationNameConstant            = RepositoryOperationName("Diff")
	showFileOperationNameConstant        = RepositoryOperationName("ShowFile")
	stashCreateOperationNameConstant     = RepositoryOperationName("StashCreate")
	stashApplyOperationNameConstant      = RepositoryOperationName("StashApply")
	stashDropOperationNameConstant       = RepositoryOperationName("StashDrop")
	stashPushOperationNameConstant       = RepositoryOperationName("StashPush")
	worktreeAddOperationNameConstant     = RepositoryOperationName("WorktreeAdd")
	worktreeRemoveOperationNameConstant  = RepositoryOperationName("WorktreeRemove")
	applyPatchOperationNameConstant      = RepositoryOperationName("ApplyPatch")
	readTreeOperationNameConstant        = RepositoryOperationName("ReadTree")
	writeTreeOperationNameConstant       = RepositoryOperationName("WriteTree")
	commitTreeOperationNameConstant      = RepositoryOperationName("CommitTree")
	updateRefOperationNameConstant       = RepositoryOperationName("UpdateRef")
	resetHardOperationNameConstant       = RepositoryOperationName("ResetHard")
	stageAllOperationNameConstant        = RepositoryOperationName("StageAll")
	amendCommitOperationNameConstant     = RepositoryOperationName("AmendCommit")
	rebaseOperationNameConstant          = RepositoryOperationName("Rebase")
	reflogPositionOperationNameConstant  = RepositoryOperationName("ReflogPosition")
	conflictedFilesOperationNameConstant = RepositoryOperationName("ConflictedFiles")
	sequencerStateOperationNameConstant  = RepositoryOperationName("SequencerState")
)

// GitCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type GitCommandExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
	ExecuteGitObserved(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// WorktreeState classifies the staged and unstaged contents of the working tree.
type WorktreeState string

// Worktree states reported by Status.
const (
	WorktreeStateClean        WorktreeState = "clean"
	WorktreeStateStagedOnly   WorktreeState = "staged_only"
	WorktreeStateUnstagedOnly WorktreeState = "unstaged_only"
	WorktreeStateMixed        WorktreeState = "mixed"
)

// ApplyMode selects how a patch is applied.
type ApplyMode string

// Patch application modes.
const (
	ApplyModeCheck       ApplyMode = "check"
	ApplyModeIndex       ApplyMode = "index"
	ApplyModeWorkingTree ApplyMode = "working_tree"
)

// ApplyResult reports the observed outcome of a patch application.
type ApplyResult struct {
	Applied       bool
	StandardError string
}

// SequencerState reports in-progress history-rewriting operations.
type SequencerState struct {
	RebaseInProgress     bool
	MergeInProgress      bool
	CherryPickInProgress bool
}

// Busy reports whether any sequencer operation is in progress.
func (state SequencerState) Busy() bool {
	return state.RebaseInProgress || state.MergeInProgress || state.CherryPickInProgress
}

// RebaseOutcome classifies the observed result of a rebase invocation.
type RebaseOutcome string

// Rebase outcomes.
const (
	RebaseOutcomeCompleted RebaseOutcome = "completed"
	RebaseOutcomeConflict  RebaseOutcome = "conflict"
	RebaseOutcomeFailed    RebaseOutcome = "failed"
)

// RebaseResult carries the outcome of a rebase invocation together with conflicted paths.
type RebaseResult struct {
	Outcome         RebaseOutcome
	ConflictedFiles []string
	StandardError   string
}

// RepositoryManager coordinates Git operations through execshell.
type RepositoryManager struct {
	executor GitCommandExecutor
}

var (
	// ErrGitExecutorNotConfigured indicates the RepositoryManager was constructed without a git executor.
	ErrGitExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for git operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplate, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorCauseTemplate, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor GitCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

func requireValue(fieldName string, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return "", InvalidRepositoryInputError{FieldName: fieldName, Message: requiredValueMessageConstant}
	}
	return trimmed, nil
}

// Status classifies the working tree into clean, staged-only, unstaged-only, or mixed.
func (manager *RepositoryManager) Status(executionContext context.Context, repositoryPath string) (WorktreeState, error) {
	entries, statusError := manager.WorktreeStatus(executionContext, repositoryPath)
	if statusError != nil {
		return WorktreeState(""), statusError
	}

	hasStaged := false
	hasUnstaged := false
	for _, entry := range entries {
		if len(entry) < 2 {
			continue
		}
		indexColumn := entry[0]
		worktreeColumn := entry[1]
		if indexColumn == '?' || indexColumn == '!' {
			hasUnstaged = true
			continue
		}
		if indexColumn != ' ' {
			hasStaged = true
		}
		if worktreeColumn != ' ' {
			hasUnstaged = true
		}
	}

	switch {
	case hasStaged && hasUnstaged:
		return WorktreeStateMixed, nil
	case hasStaged:
		return WorktreeStateStagedOnly, nil
	case hasUnstaged:
		return WorktreeStateUnstagedOnly, nil
	default:
		return WorktreeStateClean, nil
	}
}

// WorktreeStatus returns the raw porcelain status entries for the repository.
func (manager *RepositoryManager) WorktreeStatus(executionContext context.Context, repositoryPath string) ([]string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitStatusSubcommandConstant, gitStatusPorcelainFlagConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: statusOperationNameConstant, Cause: executionError}
	}

	trimmedOutput := strings.TrimRight(executionResult.StandardOutput, "\n")
	if len(trimmedOutput) == 0 {
		return nil, nil
	}

	lines := strings.Split(trimmedOutput, "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		if len(strings.TrimSpace(line)) > 0 {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// GetCurrentBranch resolves the current branch name. Detached HEAD resolves to "HEAD".
func (manager *RepositoryManager) GetCurrentBranch(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitAbbrevRefFlagConstant, gitHeadReferenceConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: currentBranchOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// RepositoryRoot resolves the absolute path of the repository working tree root.
func (manager *RepositoryManager) RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitShowTopLevelFlagConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: repositoryRootOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// HeadCommit resolves the commit hash the HEAD reference points at.
func (manager *RepositoryManager) HeadCommit(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevParseSubcommandConstant, gitHeadReferenceConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: headCommitOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// MergeBase resolves the most recent common ancestor of the two revisions.
// An empty result without error indicates the revisions share no ancestor.
func (manager *RepositoryManager) MergeBase(executionContext context.Context, repositoryPath string, firstRevision string, secondRevision string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}
	trimmedFirst, firstError := requireValue(revisionFieldNameConstant, firstRevision)
	if firstError != nil {
		return "", firstError
	}
	trimmedSecond, secondError := requireValue(revisionFieldNameConstant, secondRevision)
	if secondError != nil {
		return "", secondError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitMergeBaseSubcommandConstant, trimmedFirst, trimmedSecond},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: mergeBaseOperationNameConstant, Cause: executionError}
	}
	if executionResult.ExitCode != 0 {
		return "", nil
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// IsAncestor reports whether the first revision is an ancestor of the second.
func (manager *RepositoryManager) IsAncestor(executionContext context.Context, repositoryPath string, ancestorRevision string, descendantRevision string) (bool, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return false, pathError
	}
	trimmedAncestor, ancestorError := requireValue(revisionFieldNameConstant, ancestorRevision)
	if ancestorError != nil {
		return false, ancestorError
	}
	trimmedDescendant, descendantError := requireValue(revisionFieldNameConstant, descendantRevision)
	if descendantError != nil {
		return false, descendantError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitMergeBaseSubcommandConstant, gitIsAncestorFlagConstant, trimmedAncestor, trimmedDescendant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return false, RepositoryOperationError{Operation: mergeBaseOperationNameConstant, Cause: executionError}
	}
	return executionResult.ExitCode == 0, nil
}

// RevList lists the commit hashes reachable from endRevision but not startRevision, newest first.
func (manager *RepositoryManager) RevList(executionContext context.Context, repositoryPath string, startRevision string, endRevision string) ([]string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}
	trimmedStart, startError := requireValue(revisionFieldNameConstant, startRevision)
	if startError != nil {
		return nil, startError
	}
	trimmedEnd, endError := requireValue(revisionFieldNameConstant, endRevision)
	if endError != nil {
		return nil, endError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevListSubcommandConstant, trimmedStart + ".." + trimmedEnd},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: revListOperationNameConstant, Cause: executionError}
	}

	return splitNonEmptyLines(executionResult.StandardOutput), nil
}

// RevListTouchingFile lists the in-range commits that touched the provided file, newest first.
func (manager *RepositoryManager) RevListTouchingFile(executionContext context.Context, repositoryPath string, startRevision string, endRevision string, filePath string) ([]string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}
	trimmedStart, startError := requireValue(revisionFieldNameConstant, startRevision)
	if startError != nil {
		return nil, startError
	}
	trimmedEnd, endError := requireValue(revisionFieldNameConstant, endRevision)
	if endError != nil {
		return nil, endError
	}
	trimmedFile, fileError := requireValue(filePathFieldNameConstant, filePath)
	if fileError != nil {
		return nil, fileError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRevListSubcommandConstant, trimmedStart + ".." + trimmedEnd, gitPathspecSeparatorConstant, trimmedFile},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: revListOperationNameConstant, Cause: executionError}
	}

	return splitNonEmptyLines(executionResult.StandardOutput), nil
}

// Diff captures the unified diff of the working tree or the index with three context lines.
func (manager *RepositoryManager) Diff(executionContext context.Context, repositoryPath string, staged bool, paths []string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandArguments := []string{gitDiffSubcommandConstant, gitDiffNoColorFlagConstant, gitDiffContextFlagConstant}
	if staged {
		commandArguments = append(commandArguments, gitDiffCachedFlagConstant)
	}
	if len(paths) > 0 {
		commandArguments = append(commandArguments, gitPathspecSeparatorConstant)
		commandArguments = append(commandArguments, paths...)
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: diffOperationNameConstant, Cause: executionError}
	}

	return executionResult.StandardOutput, nil
}

// ShowFile returns the file content stored at the provided revision.
func (manager *RepositoryManager) ShowFile(executionContext context.Context, repositoryPath string, revision string, filePath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}
	trimmedRevision, revisionError := requireValue(revisionFieldNameConstant, revision)
	if revisionError != nil {
		return "", revisionError
	}
	trimmedFile, fileError := requireValue(filePathFieldNameConstant, filePath)
	if fileError != nil {
		return "", fileError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitShowSubcommandConstant, trimmedRevision + ":" + trimmedFile},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: showFileOperationNameConstant, Cause: executionError}
	}

	return executionResult.StandardOutput, nil
}

// FileExistsAtRevision reports whether the file is present in the tree of the provided revision.
func (manager *RepositoryManager) FileExistsAtRevision(executionContext context.Context, repositoryPath string, revision string, filePath string) (bool, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return false, pathError
	}
	trimmedRevision, revisionError := requireValue(revisionFieldNameConstant, revision)
	if revisionError != nil {
		return false, revisionError
	}
	trimmedFile, fileError := requireValue(filePathFieldNameConstant, filePath)
	if fileError != nil {
		return false, fileError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitCatFileSubcommandConstant, gitCatFileExistsFlagConstant, trimmedRevision + ":" + trimmedFile},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return false, RepositoryOperationError{Operation: showFileOperationNameConstant, Cause: executionError}
	}
	return executionResult.ExitCode == 0, nil
}

// StashCreate records a stash commit of the working tree and index without modifying either,
// stores it under the provided message, and returns the stash commit hash.
// An empty hash without error indicates there was nothing to stash.
func (manager *RepositoryManager) StashCreate(executionContext context.Context, repositoryPath string, message string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}
	trimmedMessage, messageError := requireValue(messageFieldNameConstant, message)
	if messageError != nil {
		return "", messageError
	}

	createDetails := execshell.CommandDetails{
		Arguments:        []string{gitStashSubcommandConstant, gitStashCreateSubcommandConstant, trimmedMessage},
		WorkingDirectory: trimmedPath,
	}

	createResult, createError := manager.executor.ExecuteGit(executionContext, createDetails)
	if createError != nil {
		return "", RepositoryOperationError{Operation: stashCreateOperationNameConstant, Cause: createError}
	}

	stashHash := strings.TrimSpace(createResult.StandardOutput)
	if len(stashHash) == 0 {
		return "", nil
	}

	storeDetails := execshell.CommandDetails{
		Arguments:        []string{gitStashSubcommandConstant, gitStashStoreSubcommandConstant, gitStashMessageFlagConstant, trimmedMessage, stashHash},
		WorkingDirectory: trimmedPath,
	}

	if _, storeError := manager.executor.ExecuteGit(executionContext, storeDetails); storeError != nil {
		return "", RepositoryOperationError{Operation: stashCreateOperationNameConstant, Cause: storeError}
	}

	return stashHash, nil
}

// StashPush stashes working tree and index contents, including untracked files, under the provided message.
func (manager *RepositoryManager) StashPush(executionContext context.Context, repositoryPath string, message string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedMessage, messageError := requireValue(messageFieldNameConstant, message)
	if messageError != nil {
		return messageError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitStashSubcommandConstant, gitStashPushSubcommandConstant, gitStashIncludeUntrackedFlagConstant, gitStashMessageFlagConstant, trimmedMessage},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: stashPushOperationNameConstant, Cause: executionError}
	}
	return nil
}

// StashApply reapplies the stash identified by the provided reference.
func (manager *RepositoryManager) StashApply(executionContext context.Context, repositoryPath string, stashReference string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedReference, referenceError := requireValue(stashReferenceFieldNameConstant, stashReference)
	if referenceError != nil {
		return referenceError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitStashSubcommandConstant, gitStashApplySubcommandConstant, trimmedReference},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: stashApplyOperationNameConstant, Cause: executionError}
	}
	return nil
}

// StashDrop removes the stash identified by the provided reference.
func (manager *RepositoryManager) StashDrop(executionContext context.Context, repositoryPath string, stashReference string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedReference, referenceError := requireValue(stashReferenceFieldNameConstant, stashReference)
	if referenceError != nil {
		return referenceError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitStashSubcommandConstant, gitStashDropSubcommandConstant, trimmedReference},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: stashDropOperationNameConstant, Cause: executionError}
	}
	return nil
}

// WorktreeAdd creates a detached scratch worktree at the provided revision.
func (manager *RepositoryManager) WorktreeAdd(executionContext context.Context, repositoryPath string, worktreePath string, revision string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedWorktreePath, worktreePathError := requireValue(worktreePathFieldNameConstant, worktreePath)
	if worktreePathError != nil {
		return worktreePathError
	}
	trimmedRevision, revisionError := requireValue(revisionFieldNameConstant, revision)
	if revisionError != nil {
		return revisionError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitWorktreeSubcommandConstant, gitWorktreeAddSubcommandConstant, gitWorktreeDetachFlagConstant, trimmedWorktreePath, trimmedRevision},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: worktreeAddOperationNameConstant, Cause: executionError}
	}
	return nil
}

// WorktreeRemove removes the scratch worktree, discarding its local modifications.
func (manager *RepositoryManager) WorktreeRemove(executionContext context.Context, repositoryPath string, worktreePath string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedWorktreePath, worktreePathError := requireValue(worktreePathFieldNameConstant, worktreePath)
	if worktreePathError != nil {
		return worktreePathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitWorktreeSubcommandConstant, gitWorktreeRemoveSubcommandConstant, gitWorktreeForceFlagConstant, trimmedWorktreePath},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: worktreeRemoveOperationNameConstant, Cause: executionError}
	}
	return nil
}

// WorktreeSupported probes whether the installed git provides worktree management.
func (manager *RepositoryManager) WorktreeSupported(executionContext context.Context, repositoryPath string) bool {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return false
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitWorktreeSubcommandConstant, "list"},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return false
	}
	return executionResult.ExitCode == 0
}

// ApplyPatch applies the provided unified diff in the requested mode and reports the
// observed outcome without turning rejected patches into errors.
func (manager *RepositoryManager) ApplyPatch(executionContext context.Context, repositoryPath string, patchContent string, mode ApplyMode) (ApplyResult, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return ApplyResult{}, pathError
	}
	if len(patchContent) == 0 {
		return ApplyResult{}, InvalidRepositoryInputError{FieldName: patchContentFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandArguments := []string{gitApplySubcommandConstant, gitApplyWhitespaceFlagConstant}
	switch mode {
	case ApplyModeCheck:
		commandArguments = append(commandArguments, gitApplyCheckFlagConstant)
	case ApplyModeIndex:
		commandArguments = append(commandArguments, gitApplyCachedFlagConstant)
	case ApplyModeWorkingTree:
	}
	commandArguments = append(commandArguments, "-")

	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
		StandardInput:    []byte(patchContent),
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return ApplyResult{}, RepositoryOperationError{Operation: applyPatchOperationNameConstant, Cause: executionError}
	}

	return ApplyResult{Applied: executionResult.ExitCode == 0, StandardError: executionResult.StandardError}, nil
}

// ReadTree loads the provided revision's tree into the index.
func (manager *RepositoryManager) ReadTree(executionContext context.Context, repositoryPath string, revision string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedRevision, revisionError := requireValue(revisionFieldNameConstant, revision)
	if revisionError != nil {
		return revisionError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitReadTreeSubcommandConstant, trimmedRevision},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: readTreeOperationNameConstant, Cause: executionError}
	}
	return nil
}

// WriteTree writes the current index as a tree object and returns its hash.
func (manager *RepositoryManager) WriteTree(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitWriteTreeSubcommandConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: writeTreeOperationNameConstant, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// CommitTree creates a commit object for the provided tree and parents and returns its hash.
func (manager *RepositoryManager) CommitTree(executionContext context.Context, repositoryPath string, treeHash string, parentHashes []string, message string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}
	trimmedTree, treeError := requireValue(treeHashFieldNameConstant, treeHash)
	if treeError != nil {
		return "", treeError
	}
	trimmedMessage, messageError := requireValue(messageFieldNameConstant, message)
	if messageError != nil {
		return "", messageError
	}

	commandArguments := []string{gitCommitTreeSubcommandConstant, trimmedTree}
	for _, parentHash := range parentHashes {
		trimmedParent := strings.TrimSpace(parentHash)
		if len(trimmedParent) == 0 {
			continue
		}
		commandArguments = append(commandArguments, gitCommitTreeParentFlagConstant, trimmedParent)
	}
	commandArguments = append(commandArguments, gitCommitTreeMessageFlagConstant, trimmedMessage)

	commandDetails := execshell.CommandDetails{
		Arguments:        commandArguments,
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: commitTreeOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// UpdateRef points the provided reference at the commit hash.
func (manager *RepositoryManager) UpdateRef(executionContext context.Context, repositoryPath string, referenceName string, commitHash string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedReference, referenceError := requireValue(referenceFieldNameConstant, referenceName)
	if referenceError != nil {
		return referenceError
	}
	trimmedHash, hashError := requireValue(revisionFieldNameConstant, commitHash)
	if hashError != nil {
		return hashError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitUpdateRefSubcommandConstant, trimmedReference, trimmedHash},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: updateRefOperationNameConstant, Cause: executionError}
	}
	return nil
}

// ResetHard moves HEAD, index, and working tree to the provided revision.
func (manager *RepositoryManager) ResetHard(executionContext context.Context, repositoryPath string, revision string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}
	trimmedRevision, revisionError := requireValue(revisionFieldNameConstant, revision)
	if revisionError != nil {
		return revisionError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitResetSubcommandConstant, gitResetHardFlagConstant, trimmedRevision},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: resetHardOperationNameConstant, Cause: executionError}
	}
	return nil
}

// StageAll stages every change in the working tree.
func (manager *RepositoryManager) StageAll(executionContext context.Context, repositoryPath string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitAddSubcommandConstant, gitAddAllPathSpecConstant},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGit(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: stageAllOperationNameConstant, Cause: executionError}
	}
	return nil
}

// AmendCommit amends the checked-out commit keeping its message, reporting the observed result.
func (manager *RepositoryManager) AmendCommit(executionContext context.Context, repositoryPath string) (execshell.ExecutionResult, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return execshell.ExecutionResult{}, pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitCommitSubcommandConstant, gitCommitAmendFlagConstant, gitCommitNoEditFlagConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return execshell.ExecutionResult{}, RepositoryOperationError{Operation: amendCommitOperationNameConstant, Cause: executionError}
	}
	return executionResult, nil
}

// RebaseWithTodo starts an interactive rebase onto the provided upstream with the supplied todo list.
// The sequence editor is replaced so no terminal editor is ever opened.
func (manager *RepositoryManager) RebaseWithTodo(executionContext context.Context, repositoryPath string, upstreamRevision string, todoFilePath string) (RebaseResult, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return RebaseResult{}, pathError
	}
	trimmedUpstream, upstreamError := requireValue(revisionFieldNameConstant, upstreamRevision)
	if upstreamError != nil {
		return RebaseResult{}, upstreamError
	}
	trimmedTodoPath, todoError := requireValue(filePathFieldNameConstant, todoFilePath)
	if todoError != nil {
		return RebaseResult{}, todoError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRebaseSubcommandConstant, gitRebaseInteractiveFlagConstant, trimmedUpstream},
		WorkingDirectory: trimmedPath,
		EnvironmentVariables: map[string]string{
			gitSequenceEditorVariableConstant: "cp " + shellQuote(trimmedTodoPath),
			gitEditorVariableConstant:         gitEditorTrueCommandConstant,
		},
	}

	return manager.observeRebase(executionContext, trimmedPath, commandDetails)
}

// RebaseContinue resumes a paused rebase.
func (manager *RepositoryManager) RebaseContinue(executionContext context.Context, repositoryPath string) (RebaseResult, error) {
	return manager.runRebaseControl(executionContext, repositoryPath, gitRebaseContinueFlagConstant)
}

// RebaseSkip drops the current rebase step and resumes.
func (manager *RepositoryManager) RebaseSkip(executionContext context.Context, repositoryPath string) (RebaseResult, error) {
	return manager.runRebaseControl(executionContext, repositoryPath, gitRebaseSkipFlagConstant)
}

// RebaseAbort abandons the in-progress rebase and restores the pre-rebase state.
func (manager *RepositoryManager) RebaseAbort(executionContext context.Context, repositoryPath string) error {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRebaseSubcommandConstant, gitRebaseAbortFlagConstant},
		WorkingDirectory: trimmedPath,
	}

	if _, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails); executionError != nil {
		return RepositoryOperationError{Operation: rebaseOperationNameConstant, Cause: executionError}
	}
	return nil
}

func (manager *RepositoryManager) runRebaseControl(executionContext context.Context, repositoryPath string, controlFlag string) (RebaseResult, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return RebaseResult{}, pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitRebaseSubcommandConstant, controlFlag},
		WorkingDirectory: trimmedPath,
		EnvironmentVariables: map[string]string{
			gitEditorVariableConstant: gitEditorTrueCommandConstant,
		},
	}

	return manager.observeRebase(executionContext, trimmedPath, commandDetails)
}

func (manager *RepositoryManager) observeRebase(executionContext context.Context, repositoryPath string, commandDetails execshell.CommandDetails) (RebaseResult, error) {
	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return RebaseResult{}, RepositoryOperationError{Operation: rebaseOperationNameConstant, Cause: executionError}
	}

	if executionResult.ExitCode == 0 {
		return RebaseResult{Outcome: RebaseOutcomeCompleted}, nil
	}

	conflictedFiles, conflictError := manager.ConflictedFiles(executionContext, repositoryPath)
	if conflictError != nil {
		return RebaseResult{}, conflictError
	}
	if len(conflictedFiles) > 0 {
		return RebaseResult{Outcome: RebaseOutcomeConflict, ConflictedFiles: conflictedFiles, StandardError: executionResult.StandardError}, nil
	}
	return RebaseResult{Outcome: RebaseOutcomeFailed, StandardError: executionResult.StandardError}, nil
}

// ConflictedFiles lists paths carrying unresolved merge conflicts.
func (manager *RepositoryManager) ConflictedFiles(executionContext context.Context, repositoryPath string) ([]string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return nil, pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitDiffSubcommandConstant, gitDiffNameOnlyFlagConstant, gitDiffUnmergedFilterFlagConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGit(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: conflictedFilesOperationNameConstant, Cause: executionError}
	}

	return splitNonEmptyLines(executionResult.StandardOutput), nil
}

// CurrentSequencerState reports in-progress rebase, merge, or cherry-pick operations.
func (manager *RepositoryManager) CurrentSequencerState(executionContext context.Context, repositoryPath string) (SequencerState, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return SequencerState{}, pathError
	}

	state := SequencerState{}
	referenceChecks := []struct {
		reference string
		flag      *bool
	}{
		{reference: gitRebaseHeadReferenceConstant, flag: &state.RebaseInProgress},
		{reference: gitMergeHeadReferenceConstant, flag: &state.MergeInProgress},
		{reference: gitCherryPickHeadReferenceConstant, flag: &state.CherryPickInProgress},
	}

	for _, referenceCheck := range referenceChecks {
		commandDetails := execshell.CommandDetails{
			Arguments:        []string{gitRevParseSubcommandConstant, gitVerifyFlagConstant, gitQuietFlagConstant, referenceCheck.reference},
			WorkingDirectory: trimmedPath,
		}
		executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
		if executionError != nil {
			return SequencerState{}, RepositoryOperationError{Operation: sequencerStateOperationNameConstant, Cause: executionError}
		}
		*referenceCheck.flag = executionResult.ExitCode == 0
	}

	return state, nil
}

// ReflogPosition reports the current reflog selector for HEAD.
func (manager *RepositoryManager) ReflogPosition(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath, pathError := requireValue(repositoryPathFieldNameConstant, repositoryPath)
	if pathError != nil {
		return "", pathError
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{gitReflogSubcommandConstant, gitReflogShowSubcommandConstant, gitReflogSelectorFormatFlagConstant, gitSingleEntryFlagConstant, gitHeadReferenceConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.executor.ExecuteGitObserved(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: reflogPositionOperationNameConstant, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// CommitTimestamp resolves the author timestamp of the provided revision in Unix seconds.
func (manager *RepositoryManager) CommitTimestamp(executionContext context.Context, repositoryPath string, revision string) (int64, error) {
	metadataByHash, loadError := manager.BatchLoadCommitMetadata(executionContext, repositoryPath, []string{revision})
	if loadError != nil {
		return 0, loadError
	}
	metadata, present := metadataByHash[strings.TrimSpace(revision)]
	if !present {
		return 0, RepositoryOperationError{Operation: revListOperationNameConstant, Cause: fmt.Errorf("no metadata for revision %s", strings.TrimSpace(revision))}
	}
	return metadata.AuthorTime, nil
}

func splitNonEmptyLines(output string) []string {
	trimmedOutput := strings.TrimSpace(output)
	if len(trimmedOutput) == 0 {
		return nil
	}
	lines := strings.Split(trimmedOutput, "\n")
	values := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			values = append(values, trimmed)
		}
	}
	return values
}

func shellQuote(value string) string {
	if !strings.ContainsAny(value, " \t'\"\\") {
		return value
	}
	return strconv.Quote(value)
}
