package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autosquash/internal/autosquash"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	testVersionValueConstant       = "1.2.3"
	testSkippedTargetConstant      = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testBackupStashConstant        = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	testRepositoryRootConstant     = "/tmp/example-repository"
	testAbortedReasonConstant      = "rebase conflict left unresolved"
	testCleanTreeReasonConstant    = "working tree clean"
	testSearchPathOverrideConstant = "/first/path"
	testSecondSearchPathConstant   = "/second/path"
)

type stubPipelineRunner struct {
	report             autosquash.Report
	executionError     error
	receivedOptions    autosquash.Options
	receivedAutoAccept bool
	executed           bool
}

func (runner *stubPipelineRunner) Execute(_ context.Context, options autosquash.Options) (autosquash.Report, error) {
	runner.executed = true
	runner.receivedOptions = options
	return runner.report, runner.executionError
}

type fakeCapabilityInspector struct {
	repositoryRoot    string
	worktreeSupported bool
}

func (inspector fakeCapabilityInspector) RepositoryRoot(_ context.Context, _ string) (string, error) {
	return inspector.repositoryRoot, nil
}

func (inspector fakeCapabilityInspector) WorktreeSupported(_ context.Context, _ string) bool {
	return inspector.worktreeSupported
}

func buildTestApplication(runner *stubPipelineRunner) (*Application, *bytes.Buffer, *[]int) {
	outputBuffer := &bytes.Buffer{}
	recordedExitCodes := &[]int{}

	application := NewApplication()
	application.inputReader = strings.NewReader("")
	application.exitFunction = func(exitCode int) {
		*recordedExitCodes = append(*recordedExitCodes, exitCode)
	}
	application.versionResolver = func(_ context.Context) string {
		return testVersionValueConstant
	}
	application.pipelineFactory = func(_ *cobra.Command, autoAccept bool) (PipelineRunner, error) {
		runner.receivedAutoAccept = autoAccept
		return runner, nil
	}
	application.rootCommand.SetOut(outputBuffer)
	application.rootCommand.SetErr(outputBuffer)
	return application, outputBuffer, recordedExitCodes
}

func TestExitCodeForError(testInstance *testing.T) {
	testCases := []struct {
		name             string
		executionError   error
		expectedExitCode int
	}{
		{name: "nil_error_is_success", executionError: nil, expectedExitCode: 0},
		{name: "generic_error_is_failure", executionError: errors.New("broken"), expectedExitCode: 1},
		{
			name:             "precondition_failure_is_failure",
			executionError:   autosquash.FlowError{Kind: autosquash.FailureKindPrecondition},
			expectedExitCode: 1,
		},
		{
			name:             "interrupted_failure_is_cancelled",
			executionError:   autosquash.FlowError{Kind: autosquash.FailureKindInterrupted},
			expectedExitCode: 130,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			require.Equal(subTest, testCase.expectedExitCode, ExitCodeForError(testCase.executionError))
		})
	}
}

func TestRootCommandPrintsNoopReason(testInstance *testing.T) {
	runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
	application, outputBuffer, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{})

	require.NoError(testInstance, application.Execute())
	require.True(testInstance, runner.executed)
	require.Contains(testInstance, outputBuffer.String(), testCleanTreeReasonConstant)
}

func TestRootCommandPrintsSuccessSummary(testInstance *testing.T) {
	runner := &stubPipelineRunner{report: autosquash.Report{
		State:            strategy.OutcomeStateSuccess,
		StrategyUsed:     strategy.StrategyWorktree,
		SkippedTargets:   []string{testSkippedTargetConstant},
		BackupStash:      testBackupStashConstant,
		StashKeptForUser: true,
		ApprovedCount:    2,
		IgnoredCount:     1,
	}}
	application, outputBuffer, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{})

	require.NoError(testInstance, application.Execute())

	renderedOutput := outputBuffer.String()
	require.Contains(testInstance, renderedOutput, "2 approved, 1 ignored (worktree strategy)")
	require.Contains(testInstance, renderedOutput, "skipped fixup for "+testSkippedTargetConstant[:7])
	require.Contains(testInstance, renderedOutput, "backup stash kept: "+testBackupStashConstant)
}

func TestRootCommandTranslatesAbortedOutcome(testInstance *testing.T) {
	runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateAborted, Reason: testAbortedReasonConstant}}
	application, _, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{})

	executionError := application.Execute()

	var flowError autosquash.FlowError
	require.ErrorAs(testInstance, executionError, &flowError)
	require.Equal(testInstance, autosquash.FailureKindRebaseConflict, flowError.Kind)
	require.Equal(testInstance, testAbortedReasonConstant, flowError.Artifact)
	require.Equal(testInstance, 1, ExitCodeForError(executionError))
}

func TestRootCommandForwardsFlagValues(testInstance *testing.T) {
	runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
	application, _, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{
		"--repository", testRepositoryRootConstant,
		"--base", "main",
		"--strategy", "index",
		"--line-by-line",
		"--auto-accept",
	})

	require.NoError(testInstance, application.Execute())
	require.Equal(testInstance, testRepositoryRootConstant, runner.receivedOptions.RepositoryPath)
	require.Equal(testInstance, "main", runner.receivedOptions.BaseRevision)
	require.Equal(testInstance, strategy.StrategyIndex, runner.receivedOptions.Strategy)
	require.True(testInstance, runner.receivedOptions.LineByLine)
	require.True(testInstance, runner.receivedAutoAccept)
}

func TestRootCommandRejectsUnknownStrategy(testInstance *testing.T) {
	runner := &stubPipelineRunner{}
	application, _, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{"--strategy", "teleport"})

	executionError := application.Execute()

	var unknownStrategyError strategy.UnknownStrategyError
	require.ErrorAs(testInstance, executionError, &unknownStrategyError)
	require.False(testInstance, runner.executed)
}

func TestStrategyEnvironmentOverridesConfigurationButNotFlag(testInstance *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		expectedStrategy strategy.Strategy
	}{
		{name: "environment_applies_when_flag_unset", arguments: []string{}, expectedStrategy: strategy.StrategyIndex},
		{
			name:             "flag_wins_over_environment",
			arguments:        []string{"--strategy", "worktree"},
			expectedStrategy: strategy.StrategyWorktree,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			subTest.Setenv(strategyEnvironmentNameConstant, "index")
			runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
			application, _, _ := buildTestApplication(runner)
			application.rootCommand.SetArgs(testCase.arguments)

			require.NoError(subTest, application.Execute())
			require.Equal(subTest, testCase.expectedStrategy, runner.receivedOptions.Strategy)
		})
	}
}

func TestVersionFlagPrintsVersionAndRequestsExit(testInstance *testing.T) {
	runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
	application, outputBuffer, recordedExitCodes := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{"--version"})

	require.NoError(testInstance, application.Execute())
	require.Contains(testInstance, outputBuffer.String(), "autosquash version: "+testVersionValueConstant)
	require.Equal(testInstance, []int{0}, *recordedExitCodes)
}

func TestVersionSubcommandPrintsVersion(testInstance *testing.T) {
	runner := &stubPipelineRunner{}
	application, outputBuffer, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{"version"})

	require.NoError(testInstance, application.Execute())
	require.Contains(testInstance, outputBuffer.String(), "autosquash version: "+testVersionValueConstant)
	require.False(testInstance, runner.executed)
}

func TestStrategyInfoReportsCapabilitiesAndSelection(testInstance *testing.T) {
	testCases := []struct {
		name                string
		worktreeSupported   bool
		environmentStrategy string
		expectedFragments   []string
		forbiddenFragment   string
	}{
		{
			name:              "worktree_supported_selects_worktree",
			worktreeSupported: true,
			expectedFragments: []string{
				"worktree capability: supported",
				"selected strategy: worktree (worktree capability detected)",
			},
			forbiddenFragment: "environment override",
		},
		{
			name:              "worktree_missing_selects_index",
			worktreeSupported: false,
			expectedFragments: []string{
				"worktree capability: missing",
				"selected strategy: index (worktree capability missing)",
			},
			forbiddenFragment: "environment override",
		},
		{
			name:                "environment_override_is_reported",
			worktreeSupported:   true,
			environmentStrategy: "index",
			expectedFragments: []string{
				"selected strategy: index (strategy requested explicitly)",
				"environment override: GIT_AUTOSQUASH_STRATEGY=index",
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			if len(testCase.environmentStrategy) > 0 {
				subTest.Setenv(strategyEnvironmentNameConstant, testCase.environmentStrategy)
			}
			runner := &stubPipelineRunner{}
			application, outputBuffer, _ := buildTestApplication(runner)
			application.capabilityInspectorFactory = func() (CapabilityInspector, error) {
				return fakeCapabilityInspector{
					repositoryRoot:    testRepositoryRootConstant,
					worktreeSupported: testCase.worktreeSupported,
				}, nil
			}
			application.rootCommand.SetArgs([]string{"strategy-info"})

			require.NoError(subTest, application.Execute())

			renderedOutput := outputBuffer.String()
			for _, expectedFragment := range testCase.expectedFragments {
				require.Contains(subTest, renderedOutput, expectedFragment)
			}
			if len(testCase.forbiddenFragment) > 0 {
				require.NotContains(subTest, renderedOutput, testCase.forbiddenFragment)
			}
		})
	}
}

func TestInitializeUserConfigurationWritesEmbeddedDefaults(testInstance *testing.T) {
	temporaryHome := testInstance.TempDir()
	testInstance.Setenv("HOME", temporaryHome)

	runner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
	application, outputBuffer, recordedExitCodes := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{"--init", "user"})

	require.NoError(testInstance, application.Execute())
	require.Equal(testInstance, []int{0}, *recordedExitCodes)

	expectedPath := filepath.Join(temporaryHome, configurationDirectoryNameConstant, configurationFileFullNameConstant)
	require.Contains(testInstance, outputBuffer.String(), expectedPath)

	writtenContent, readError := os.ReadFile(expectedPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, EmbeddedDefaultConfiguration(), writtenContent)
}

func TestInitializeRefusesToOverwriteWithoutForce(testInstance *testing.T) {
	temporaryHome := testInstance.TempDir()
	testInstance.Setenv("HOME", temporaryHome)

	firstRunner := &stubPipelineRunner{report: autosquash.Report{State: strategy.OutcomeStateSuccess, Reason: testCleanTreeReasonConstant}}
	firstApplication, _, _ := buildTestApplication(firstRunner)
	firstApplication.rootCommand.SetArgs([]string{"--init", "user"})
	require.NoError(testInstance, firstApplication.Execute())

	secondRunner := &stubPipelineRunner{}
	secondApplication, _, _ := buildTestApplication(secondRunner)
	secondApplication.rootCommand.SetArgs([]string{"--init", "user"})

	executionError := secondApplication.Execute()

	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "already exists")
	require.False(testInstance, secondRunner.executed)
}

func TestInitializeRejectsUnknownScope(testInstance *testing.T) {
	runner := &stubPipelineRunner{}
	application, _, _ := buildTestApplication(runner)
	application.rootCommand.SetArgs([]string{"--init", "global"})

	executionError := application.Execute()

	require.Error(testInstance, executionError)
	require.Contains(testInstance, executionError.Error(), "unknown initialization scope")
	require.False(testInstance, runner.executed)
}

func TestResolveConfigurationSearchPathsHonorsEnvironmentOverride(testInstance *testing.T) {
	overrideValue := testSearchPathOverrideConstant + string(os.PathListSeparator) + testSecondSearchPathConstant
	testInstance.Setenv(searchPathEnvironmentNameConstant, overrideValue)

	searchPaths := resolveConfigurationSearchPaths()

	require.Equal(testInstance, []string{testSearchPathOverrideConstant, testSecondSearchPathConstant}, searchPaths)
}
