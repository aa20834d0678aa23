package gitrepo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autosquash/internal/execshell"
	"github.com/tyemirov/autosquash/internal/gitrepo"
)

const (
	testMetadataSuccessCaseNameConstant   = "metadata_success"
	testMetadataEmptyCaseNameConstant     = "metadata_empty_input"
	testMetadataMalformedCaseNameConstant = "metadata_malformed_record"
	testExpandHashesCaseNameConstant      = "expand_hashes"
	testMergeCommitHashConstant           = "aaaa567890abcdef0123456789abcdef01234567"
	testMergeCommitSubjectConstant        = "Merge branch 'feature/example'"
	testRegularCommitSubjectConstant      = "Add request validation"
)

func TestBatchLoadCommitMetadata(testInstance *testing.T) {
	testInstance.Run(testMetadataSuccessCaseNameConstant, func(testInstance *testing.T) {
		metadataOutput := testHeadHashConstant + "\x1f" + "0123456" + "\x1f" + "1700000000" + "\x1f" + testMergeBaseHashConstant + "\x1f" + testRegularCommitSubjectConstant + "\x1e" +
			testMergeCommitHashConstant + "\x1f" + "aaaa567" + "\x1f" + "1700000100" + "\x1f" + testHeadHashConstant + " " + testMergeBaseHashConstant + "\x1f" + testMergeCommitSubjectConstant + "\x1e"

		executor := &scriptedGitExecutor{
			executeFunc: func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: metadataOutput}, nil
			},
		}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		metadataByRevision, loadError := manager.BatchLoadCommitMetadata(context.Background(), testRepositoryPathConstant, []string{testHeadHashConstant, testMergeCommitHashConstant})
		require.NoError(testInstance, loadError)
		require.Len(testInstance, metadataByRevision, 2)

		regularCommit := metadataByRevision[testHeadHashConstant]
		require.Equal(testInstance, testHeadHashConstant, regularCommit.Hash)
		require.Equal(testInstance, int64(1700000000), regularCommit.AuthorTime)
		require.Equal(testInstance, testRegularCommitSubjectConstant, regularCommit.Subject)
		require.False(testInstance, regularCommit.IsMerge)

		mergeCommit := metadataByRevision[testMergeCommitHashConstant]
		require.True(testInstance, mergeCommit.IsMerge)
		require.Equal(testInstance, testMergeCommitSubjectConstant, mergeCommit.Subject)

		require.Len(testInstance, executor.recordedDetails, 1)
	})

	testInstance.Run(testMetadataEmptyCaseNameConstant, func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		metadataByRevision, loadError := manager.BatchLoadCommitMetadata(context.Background(), testRepositoryPathConstant, nil)
		require.NoError(testInstance, loadError)
		require.Empty(testInstance, metadataByRevision)
		require.Empty(testInstance, executor.recordedDetails)
	})

	testInstance.Run(testMetadataMalformedCaseNameConstant, func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{
			executeFunc: func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: "not-a-record\x1e"}, nil
			},
		}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		_, loadError := manager.BatchLoadCommitMetadata(context.Background(), testRepositoryPathConstant, []string{testHeadHashConstant})
		require.Error(testInstance, loadError)
		var operationError gitrepo.RepositoryOperationError
		require.ErrorAs(testInstance, loadError, &operationError)
	})
}

func TestBatchExpandHashes(testInstance *testing.T) {
	testInstance.Run(testExpandHashesCaseNameConstant, func(testInstance *testing.T) {
		executor := &scriptedGitExecutor{
			executeFunc: func(details execshell.CommandDetails) (execshell.ExecutionResult, error) {
				return execshell.ExecutionResult{StandardOutput: testHeadHashConstant + "\n" + testMergeBaseHashConstant + "\n"}, nil
			},
		}
		manager, creationError := gitrepo.NewRepositoryManager(executor)
		require.NoError(testInstance, creationError)

		hashesByRevision, expandError := manager.BatchExpandHashes(context.Background(), testRepositoryPathConstant, []string{"0123456", "fedcba9"})
		require.NoError(testInstance, expandError)
		require.Equal(testInstance, testHeadHashConstant, hashesByRevision["0123456"])
		require.Equal(testInstance, testMergeBaseHashConstant, hashesByRevision["fedcba9"])
		require.Len(testInstance, executor.recordedDetails, 1)
	})
}
