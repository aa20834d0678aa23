package cli

import (
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/autosquash"
	"github.com/tyemirov/autosquash/internal/execshell"
	"github.com/tyemirov/autosquash/internal/gitrepo"
	"github.com/tyemirov/autosquash/internal/patch"
	"github.com/tyemirov/autosquash/internal/rebase"
	"github.com/tyemirov/autosquash/internal/resolve"
	"github.com/tyemirov/autosquash/internal/strategy"
	"github.com/tyemirov/autosquash/internal/utils"
)

const (
	blameCacheSizeConstant            = 1024
	fallbackRecentCommitLimitConstant = 25
)

func (application *Application) buildPipelineRunner(command *cobra.Command, autoAccept bool) (PipelineRunner, error) {
	repositoryManager, managerError := application.newRepositoryManager()
	if managerError != nil {
		return nil, managerError
	}
	return buildPipelineService(application.runtimeLogger(), repositoryManager, autoAccept, application.inputReader, command.OutOrStdout())
}

func (application *Application) buildCapabilityInspector() (CapabilityInspector, error) {
	return application.newRepositoryManager()
}

func (application *Application) newRepositoryManager() (*gitrepo.RepositoryManager, error) {
	humanReadableLogging := application.configuration.Common.LogFormat == string(utils.LogFormatConsole)
	shellExecutor, executorError := execshell.NewShellExecutor(application.runtimeLogger(), execshell.NewOSCommandRunner(), humanReadableLogging)
	if executorError != nil {
		return nil, executorError
	}
	return gitrepo.NewRepositoryManager(shellExecutor)
}

func buildPipelineService(logger *zap.Logger, repository *gitrepo.RepositoryManager, autoAccept bool, input io.Reader, output io.Writer) (*autosquash.Service, error) {
	blameEngine, blameError := resolve.NewBlameEngine(logger, repository, blameCacheSizeConstant)
	if blameError != nil {
		return nil, blameError
	}
	fallbackProvider, fallbackError := resolve.NewFallbackTargetProvider(logger, repository, fallbackRecentCommitLimitConstant)
	if fallbackError != nil {
		return nil, fallbackError
	}
	targetResolver, resolverError := resolve.NewHunkTargetResolver(logger, repository, blameEngine, fallbackProvider)
	if resolverError != nil {
		return nil, resolverError
	}
	patchGenerator, generatorError := patch.NewGenerator(logger, repository)
	if generatorError != nil {
		return nil, generatorError
	}
	backupManager, backupError := strategy.NewBackupManager(logger, repository)
	if backupError != nil {
		return nil, backupError
	}
	indexBuilder, indexError := strategy.NewIndexFixupBuilder(logger, repository)
	if indexError != nil {
		return nil, indexError
	}
	worktreeBuilder, worktreeError := strategy.NewWorktreeFixupBuilder(logger, repository)
	if worktreeError != nil {
		return nil, worktreeError
	}
	rebaseOrchestrator, rebaseError := rebase.NewOrchestrator(logger, repository)
	if rebaseError != nil {
		return nil, rebaseError
	}

	var conflictArbiter strategy.ConflictArbiter
	var mappingApprover autosquash.Approver
	var confirmationPrompter autosquash.ConfirmationPrompter
	if autoAccept {
		conflictArbiter = autosquash.NewAbortConflictArbiter()
		mappingApprover = autosquash.NewAutoAcceptApprover()
	} else {
		promptOutput := utils.NewFlushingWriter(output)
		conflictArbiter = autosquash.NewIOConflictArbiter(input, promptOutput)
		mappingApprover = autosquash.NewIOApprovalPrompter(input, promptOutput)
		confirmationPrompter = autosquash.NewIOConfirmationPrompter(input, promptOutput)
	}

	executionCoordinator, coordinatorError := strategy.NewCoordinator(logger, repository, repository, backupManager, indexBuilder, worktreeBuilder, rebaseOrchestrator, conflictArbiter)
	if coordinatorError != nil {
		return nil, coordinatorError
	}

	return autosquash.NewService(logger, repository, targetResolver, patchGenerator, executionCoordinator, mappingApprover, confirmationPrompter)
}
