package autosquash_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/autosquash/internal/autosquash"
	"github.com/tyemirov/autosquash/internal/hunks"
	"github.com/tyemirov/autosquash/internal/resolve"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	approvalTargetCommitConstant   = "1111111111111111111111111111111111111111"
	approvalOverrideCommitConstant = "2222222222222222222222222222222222222222"
	approvalFilePathConstant       = "parser.go"
	conflictTargetCommitConstant   = "3333333333333333333333333333333333333333"
	conflictedFileNameConstant     = "lexer.go"
)

func approvalMapping(source resolve.TargetingSource, confidence resolve.Confidence, needsConfirmation bool) resolve.Mapping {
	return resolve.Mapping{
		Hunk: hunks.Hunk{
			FilePath: approvalFilePathConstant,
			Kind:     hunks.HunkKindText,
			NewStart: 10,
		},
		TargetCommit:          approvalTargetCommitConstant,
		Source:                source,
		Confidence:            confidence,
		NeedsUserConfirmation: needsConfirmation,
	}
}

func TestAutoAcceptApproverDecidesMappings(testInstance *testing.T) {
	testCases := []struct {
		name         string
		mapping      resolve.Mapping
		expectedKind autosquash.DecisionKind
	}{
		{
			name:         "high_confidence_blame_is_approved",
			mapping:      approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceHigh, false),
			expectedKind: autosquash.DecisionApprove,
		},
		{
			name:         "medium_confidence_blame_is_ignored",
			mapping:      approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceMedium, false),
			expectedKind: autosquash.DecisionIgnore,
		},
		{
			name:         "fallback_evidence_is_ignored",
			mapping:      approvalMapping(resolve.TargetingSourceFallbackRecent, resolve.ConfidenceHigh, false),
			expectedKind: autosquash.DecisionIgnore,
		},
		{
			name:         "confirmation_required_is_ignored",
			mapping:      approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceHigh, true),
			expectedKind: autosquash.DecisionIgnore,
		},
		{
			name: "missing_target_is_ignored",
			mapping: resolve.Mapping{
				Hunk:       hunks.Hunk{FilePath: approvalFilePathConstant, Kind: hunks.HunkKindText},
				Source:     resolve.TargetingSourceBlameMatch,
				Confidence: resolve.ConfidenceHigh,
			},
			expectedKind: autosquash.DecisionIgnore,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			approver := autosquash.NewAutoAcceptApprover()

			decisions, decisionError := approver.DecideMappings(context.Background(), []resolve.Mapping{testCase.mapping})

			require.NoError(subTest, decisionError)
			require.Len(subTest, decisions, 1)
			require.Equal(subTest, testCase.expectedKind, decisions[0].Kind)
		})
	}
}

func TestIOApprovalPrompterInterpretsResponses(testInstance *testing.T) {
	testCases := []struct {
		name              string
		scriptedInput     string
		expectedDecisions []autosquash.Decision
	}{
		{
			name:              "yes_approves",
			scriptedInput:     "y\n",
			expectedDecisions: []autosquash.Decision{{Kind: autosquash.DecisionApprove}},
		},
		{
			name:              "no_ignores",
			scriptedInput:     "n\n",
			expectedDecisions: []autosquash.Decision{{Kind: autosquash.DecisionIgnore}},
		},
		{
			name:          "override_carries_target",
			scriptedInput: "o " + approvalOverrideCommitConstant + "\n",
			expectedDecisions: []autosquash.Decision{
				{Kind: autosquash.DecisionOverride, OverrideTarget: approvalOverrideCommitConstant},
			},
		},
		{
			name:              "empty_override_ignores",
			scriptedInput:     "o \n",
			expectedDecisions: []autosquash.Decision{{Kind: autosquash.DecisionIgnore}},
		},
		{
			name:              "unrecognized_input_ignores",
			scriptedInput:     "maybe\n",
			expectedDecisions: []autosquash.Decision{{Kind: autosquash.DecisionIgnore}},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			outputBuffer := &bytes.Buffer{}
			prompter := autosquash.NewIOApprovalPrompter(strings.NewReader(testCase.scriptedInput), outputBuffer)
			mapping := approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceHigh, false)

			decisions, decisionError := prompter.DecideMappings(context.Background(), []resolve.Mapping{mapping})

			require.NoError(subTest, decisionError)
			require.Equal(subTest, testCase.expectedDecisions, decisions)
			require.Contains(subTest, outputBuffer.String(), mapping.Hunk.Identifier())
		})
	}
}

func TestIOApprovalPrompterApprovesAllRemainingMappings(testInstance *testing.T) {
	prompter := autosquash.NewIOApprovalPrompter(strings.NewReader("a\n"), &bytes.Buffer{})
	mappings := []resolve.Mapping{
		approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceHigh, false),
		approvalMapping(resolve.TargetingSourceFallbackRecent, resolve.ConfidenceLow, true),
		approvalMapping(resolve.TargetingSourceContextualBlame, resolve.ConfidenceMedium, false),
	}

	decisions, decisionError := prompter.DecideMappings(context.Background(), mappings)

	require.NoError(testInstance, decisionError)
	require.Len(testInstance, decisions, len(mappings))
	for _, decision := range decisions {
		require.Equal(testInstance, autosquash.DecisionApprove, decision.Kind)
	}
}

func TestIOApprovalPrompterQuitCancelsFlow(testInstance *testing.T) {
	prompter := autosquash.NewIOApprovalPrompter(strings.NewReader("q\n"), &bytes.Buffer{})
	mappings := []resolve.Mapping{approvalMapping(resolve.TargetingSourceBlameMatch, resolve.ConfidenceHigh, false)}

	decisions, decisionError := prompter.DecideMappings(context.Background(), mappings)

	require.ErrorIs(testInstance, decisionError, autosquash.ErrApprovalCancelled)
	require.Nil(testInstance, decisions)
}

func TestIOConflictArbiterInterpretsResponses(testInstance *testing.T) {
	testCases := []struct {
		name             string
		scriptedInput    string
		expectedDecision strategy.ConflictDecision
	}{
		{name: "continue_after_resolving", scriptedInput: "c\n", expectedDecision: strategy.ConflictDecisionContinue},
		{name: "skip_this_fixup", scriptedInput: "skip\n", expectedDecision: strategy.ConflictDecisionSkip},
		{name: "unrecognized_input_aborts", scriptedInput: "what\n", expectedDecision: strategy.ConflictDecisionAbort},
		{name: "empty_input_aborts", scriptedInput: "\n", expectedDecision: strategy.ConflictDecisionAbort},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(subTest *testing.T) {
			outputBuffer := &bytes.Buffer{}
			arbiter := autosquash.NewIOConflictArbiter(strings.NewReader(testCase.scriptedInput), outputBuffer)
			report := strategy.ConflictReport{
				TargetCommit:    conflictTargetCommitConstant,
				ConflictedFiles: []string{conflictedFileNameConstant},
			}

			decision, decisionError := arbiter.DecideConflict(context.Background(), report)

			require.NoError(subTest, decisionError)
			require.Equal(subTest, testCase.expectedDecision, decision)
			require.Contains(subTest, outputBuffer.String(), conflictedFileNameConstant)
		})
	}
}

func TestAbortConflictArbiterAlwaysAborts(testInstance *testing.T) {
	arbiter := autosquash.NewAbortConflictArbiter()

	decision, decisionError := arbiter.DecideConflict(context.Background(), strategy.ConflictReport{})

	require.NoError(testInstance, decisionError)
	require.Equal(testInstance, strategy.ConflictDecisionAbort, decision)
}
