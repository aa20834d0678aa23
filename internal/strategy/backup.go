package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

const (
	backupStashMessageTemplateConstant = "autosquash-backup-%s"

	backupLoggerMissingMessageConstant     = "backup manager logger not configured"
	backupRepositoryMissingMessageConstant = "backup manager repository not configured"

	backupCreatedLogMessageConstant   = "backup state captured"
	backupRestoredLogMessageConstant  = "repository restored from backup"
	backupDiscardedLogMessageConstant = "backup stash discarded"
	savedHeadFieldNameConstant        = "saved_head"
	stashReferenceFieldNameConstant   = "stash_reference"
	reflogPositionFieldNameConstant   = "reflog_position"
)

// Sentinel configuration errors.
var (
	ErrBackupLoggerNotConfigured     = errors.New(backupLoggerMissingMessageConstant)
	ErrBackupRepositoryNotConfigured = errors.New(backupRepositoryMissingMessageConstant)
)

// BackupService exposes the repository operations backup management consumes.
type BackupService interface {
	HeadCommit(executionContext context.Context, repositoryPath string) (string, error)
	ReflogPosition(executionContext context.Context, repositoryPath string) (string, error)
	StashCreate(executionContext context.Context, repositoryPath string, message string) (string, error)
	StashApply(executionContext context.Context, repositoryPath string, stashReference string) error
	StashDrop(executionContext context.Context, repositoryPath string, stashReference string) error
	ResetHard(executionContext context.Context, repositoryPath string, revision string) error
}

// BackupState is everything needed to return the repository to its
// pre-execution condition.
type BackupState struct {
	SavedHead      string
	StashReference string
	ReflogPosition string
}

// HasStash reports whether the working tree held changes worth stashing.
func (state BackupState) HasStash() bool {
	return len(state.StashReference) > 0
}

// BackupManager captures and restores repository state around strategy
// execution. Restore is safe to retry: reset and stash apply converge on the
// saved state.
type BackupManager struct {
	repository BackupService
	logger     *zap.Logger
}

// NewBackupManager builds a backup manager.
func NewBackupManager(logger *zap.Logger, repository BackupService) (*BackupManager, error) {
	if logger == nil {
		return nil, ErrBackupLoggerNotConfigured
	}
	if repository == nil {
		return nil, ErrBackupRepositoryNotConfigured
	}
	return &BackupManager{repository: repository, logger: logger}, nil
}

// Create records HEAD and the reflog position and snapshots the working tree
// into a named stash without clearing it.
func (manager *BackupManager) Create(executionContext context.Context, repositoryPath string) (BackupState, error) {
	savedHead, headError := manager.repository.HeadCommit(executionContext, repositoryPath)
	if headError != nil {
		return BackupState{}, headError
	}

	reflogPosition, reflogError := manager.repository.ReflogPosition(executionContext, repositoryPath)
	if reflogError != nil {
		return BackupState{}, reflogError
	}

	stashMessage := fmt.Sprintf(backupStashMessageTemplateConstant, ulid.Make().String())
	stashReference, stashError := manager.repository.StashCreate(executionContext, repositoryPath, stashMessage)
	if stashError != nil {
		return BackupState{}, stashError
	}

	backupState := BackupState{
		SavedHead:      savedHead,
		StashReference: stashReference,
		ReflogPosition: reflogPosition,
	}
	manager.logger.Info(backupCreatedLogMessageConstant,
		zap.String(savedHeadFieldNameConstant, backupState.SavedHead),
		zap.String(stashReferenceFieldNameConstant, backupState.StashReference),
		zap.String(reflogPositionFieldNameConstant, backupState.ReflogPosition),
	)
	return backupState, nil
}

// Restore resets the repository to the saved HEAD and reapplies the stashed
// working tree.
func (manager *BackupManager) Restore(executionContext context.Context, repositoryPath string, backupState BackupState) error {
	if resetError := manager.repository.ResetHard(executionContext, repositoryPath, backupState.SavedHead); resetError != nil {
		return resetError
	}
	if backupState.HasStash() {
		if applyError := manager.repository.StashApply(executionContext, repositoryPath, backupState.StashReference); applyError != nil {
			return applyError
		}
	}
	manager.logger.Info(backupRestoredLogMessageConstant, zap.String(savedHeadFieldNameConstant, backupState.SavedHead))
	return nil
}

// Discard drops the backup stash once execution has fully succeeded.
func (manager *BackupManager) Discard(executionContext context.Context, repositoryPath string, backupState BackupState) error {
	if !backupState.HasStash() {
		return nil
	}
	if dropError := manager.repository.StashDrop(executionContext, repositoryPath, backupState.StashReference); dropError != nil {
		return dropError
	}
	manager.logger.Debug(backupDiscardedLogMessageConstant, zap.String(stashReferenceFieldNameConstant, backupState.StashReference))
	return nil
}
