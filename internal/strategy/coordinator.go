package strategy

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

const (
	coordinatorLoggerMissingMessageConstant       = "coordinator logger not configured"
	coordinatorCapabilitiesMissingMessageConstant = "coordinator capability service not configured"
	coordinatorRepositoryMissingMessageConstant   = "coordinator repository service not configured"
	coordinatorBackupMissingMessageConstant       = "coordinator backup manager not configured"
	coordinatorBuilderMissingMessageConstant      = "coordinator fixup builders not configured"
	coordinatorRebaseMissingMessageConstant       = "coordinator rebase service not configured"
	coordinatorArbiterMissingMessageConstant      = "coordinator conflict arbiter not configured"

	strategySelectedLogMessageConstant = "execution strategy selected"
	selectedStrategyLogFieldConstant   = "strategy"
	selectionReasonLogFieldConstant    = "reason"
)

var (
	// ErrCoordinatorLoggerNotConfigured indicates the coordinator was constructed without a logger.
	ErrCoordinatorLoggerNotConfigured = errors.New(coordinatorLoggerMissingMessageConstant)
	// ErrCoordinatorCapabilitiesNotConfigured indicates the coordinator was constructed without a capability service.
	ErrCoordinatorCapabilitiesNotConfigured = errors.New(coordinatorCapabilitiesMissingMessageConstant)
	// ErrCoordinatorRepositoryNotConfigured indicates the coordinator was constructed without a repository service.
	ErrCoordinatorRepositoryNotConfigured = errors.New(coordinatorRepositoryMissingMessageConstant)
	// ErrCoordinatorBackupNotConfigured indicates the coordinator was constructed without a backup manager.
	ErrCoordinatorBackupNotConfigured = errors.New(coordinatorBackupMissingMessageConstant)
	// ErrCoordinatorBuildersNotConfigured indicates the coordinator was constructed without both fixup builders.
	ErrCoordinatorBuildersNotConfigured = errors.New(coordinatorBuilderMissingMessageConstant)
	// ErrCoordinatorRebaseNotConfigured indicates the coordinator was constructed without a rebase service.
	ErrCoordinatorRebaseNotConfigured = errors.New(coordinatorRebaseMissingMessageConstant)
	// ErrCoordinatorArbiterNotConfigured indicates the coordinator was constructed without a conflict arbiter.
	ErrCoordinatorArbiterNotConfigured = errors.New(coordinatorArbiterMissingMessageConstant)
)

// Coordinator selects the execution strategy for a plan and runs it through a
// matching executor.
type Coordinator struct {
	logger          *zap.Logger
	capabilities    CapabilityService
	repository      ExecutorRepositoryService
	backupManager   *BackupManager
	indexBuilder    FixupBuilder
	worktreeBuilder FixupBuilder
	rebaseService   RebaseService
	conflictArbiter ConflictArbiter
}

// NewCoordinator builds a Coordinator from its collaborators.
func NewCoordinator(logger *zap.Logger, capabilities CapabilityService, repository ExecutorRepositoryService, backupManager *BackupManager, indexBuilder FixupBuilder, worktreeBuilder FixupBuilder, rebaseService RebaseService, conflictArbiter ConflictArbiter) (*Coordinator, error) {
	if logger == nil {
		return nil, ErrCoordinatorLoggerNotConfigured
	}
	if capabilities == nil {
		return nil, ErrCoordinatorCapabilitiesNotConfigured
	}
	if repository == nil {
		return nil, ErrCoordinatorRepositoryNotConfigured
	}
	if backupManager == nil {
		return nil, ErrCoordinatorBackupNotConfigured
	}
	if indexBuilder == nil || worktreeBuilder == nil {
		return nil, ErrCoordinatorBuildersNotConfigured
	}
	if rebaseService == nil {
		return nil, ErrCoordinatorRebaseNotConfigured
	}
	if conflictArbiter == nil {
		return nil, ErrCoordinatorArbiterNotConfigured
	}
	return &Coordinator{
		logger:          logger,
		capabilities:    capabilities,
		repository:      repository,
		backupManager:   backupManager,
		indexBuilder:    indexBuilder,
		worktreeBuilder: worktreeBuilder,
		rebaseService:   rebaseService,
		conflictArbiter: conflictArbiter,
	}, nil
}

// Select resolves the effective strategy for the repository from detected
// capabilities and the requested override.
func (coordinator *Coordinator) Select(executionContext context.Context, repositoryPath string, requested Strategy) Selection {
	detectedCapabilities := DetectCapabilities(executionContext, coordinator.capabilities, repositoryPath)
	selection := SelectStrategy(detectedCapabilities, requested)
	coordinator.logger.Debug(strategySelectedLogMessageConstant,
		zap.String(selectedStrategyLogFieldConstant, string(selection.Strategy)),
		zap.String(selectionReasonLogFieldConstant, selection.Reason),
	)
	return selection
}

// Execute runs the plan under the requested strategy, degrading to a supported
// one when necessary.
func (coordinator *Coordinator) Execute(executionContext context.Context, requested Strategy, plan ExecutionPlan) (Outcome, error) {
	selection := coordinator.Select(executionContext, plan.RepositoryPath, requested)

	selectedBuilder := coordinator.indexBuilder
	if selection.Strategy == StrategyWorktree {
		selectedBuilder = coordinator.worktreeBuilder
	}

	executor, creationError := NewExecutor(coordinator.logger, selection.Strategy, coordinator.repository, coordinator.backupManager, selectedBuilder, coordinator.rebaseService, coordinator.conflictArbiter)
	if creationError != nil {
		return Outcome{}, creationError
	}
	return executor.Execute(executionContext, plan)
}
