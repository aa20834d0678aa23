package autosquash

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tyemirov/autosquash/internal/resolve"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	approvalCancelledMessageConstant = "approval cancelled by user"

	mappingPromptTemplateConstant  = "%s -> %.7s [%s, %s]\nApply? [y]es / [n]o / [o]verride <commit> / [a]ll / [q]uit: "
	conflictPromptTemplateConstant = "Conflict while applying fixup for %.7s\nConflicted files: %s\n[c]ontinue after resolving / [s]kip this fixup / [a]bort: "

	approveShortResponseConstant    = "y"
	approveLongResponseConstant     = "yes"
	declineShortResponseConstant    = "n"
	declineLongResponseConstant     = "no"
	approveAllShortResponseConstant = "a"
	approveAllLongResponseConstant  = "all"
	quitShortResponseConstant       = "q"
	quitLongResponseConstant        = "quit"
	overrideResponsePrefixConstant  = "o "
	continueShortResponseConstant   = "c"
	continueLongResponseConstant    = "continue"
	skipShortResponseConstant       = "s"
	skipLongResponseConstant        = "skip"

	conflictedFileSeparatorConstant = ", "
)

// ErrApprovalCancelled indicates the user ended the approval flow before completion.
var ErrApprovalCancelled = errors.New(approvalCancelledMessageConstant)

// DecisionKind classifies one approval decision.
type DecisionKind string

// Supported approval decisions.
const (
	DecisionApprove  DecisionKind = "approve"
	DecisionOverride DecisionKind = "override"
	DecisionIgnore   DecisionKind = "ignore"
)

// Decision records the user's verdict for one proposed mapping.
type Decision struct {
	Kind           DecisionKind
	OverrideTarget string
}

// Approver reviews proposed mappings and returns one decision per mapping.
type Approver interface {
	DecideMappings(executionContext context.Context, mappings []resolve.Mapping) ([]Decision, error)
}

// AutoAcceptApprover accepts only unambiguous blame evidence and leaves every
// other change in the working tree.
type AutoAcceptApprover struct{}

// NewAutoAcceptApprover constructs an AutoAcceptApprover.
func NewAutoAcceptApprover() AutoAcceptApprover {
	return AutoAcceptApprover{}
}

// DecideMappings approves high-confidence blame matches and ignores the rest.
func (approver AutoAcceptApprover) DecideMappings(_ context.Context, mappings []resolve.Mapping) ([]Decision, error) {
	decisions := make([]Decision, 0, len(mappings))
	for _, mapping := range mappings {
		accepted := mapping.HasTarget() &&
			mapping.Source == resolve.TargetingSourceBlameMatch &&
			mapping.Confidence == resolve.ConfidenceHigh &&
			!mapping.NeedsUserConfirmation
		if accepted {
			decisions = append(decisions, Decision{Kind: DecisionApprove})
			continue
		}
		decisions = append(decisions, Decision{Kind: DecisionIgnore})
	}
	return decisions, nil
}

// IOApprovalPrompter collects approval decisions over a line-oriented reader
// and writer pair.
type IOApprovalPrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOApprovalPrompter constructs a prompter from the provided reader and writer.
func NewIOApprovalPrompter(input io.Reader, output io.Writer) *IOApprovalPrompter {
	return &IOApprovalPrompter{reader: bufio.NewReader(input), writer: output}
}

// DecideMappings prompts for every mapping in order. An "all" response approves
// the current and every remaining mapping; "quit" cancels the whole flow.
func (prompter *IOApprovalPrompter) DecideMappings(_ context.Context, mappings []resolve.Mapping) ([]Decision, error) {
	decisions := make([]Decision, 0, len(mappings))
	approveRemaining := false
	for _, mapping := range mappings {
		if approveRemaining {
			decisions = append(decisions, Decision{Kind: DecisionApprove})
			continue
		}

		prompt := fmt.Sprintf(mappingPromptTemplateConstant, mapping.Hunk.Identifier(), mapping.TargetCommit, mapping.Source, mapping.Confidence)
		response, promptError := prompter.promptLine(prompt)
		if promptError != nil {
			return nil, promptError
		}

		switch {
		case response == approveShortResponseConstant || response == approveLongResponseConstant:
			decisions = append(decisions, Decision{Kind: DecisionApprove})
		case response == approveAllShortResponseConstant || response == approveAllLongResponseConstant:
			approveRemaining = true
			decisions = append(decisions, Decision{Kind: DecisionApprove})
		case response == quitShortResponseConstant || response == quitLongResponseConstant:
			return nil, ErrApprovalCancelled
		case strings.HasPrefix(response, overrideResponsePrefixConstant):
			overrideTarget := strings.TrimSpace(strings.TrimPrefix(response, overrideResponsePrefixConstant))
			if len(overrideTarget) == 0 {
				decisions = append(decisions, Decision{Kind: DecisionIgnore})
				continue
			}
			decisions = append(decisions, Decision{Kind: DecisionOverride, OverrideTarget: overrideTarget})
		case response == declineShortResponseConstant || response == declineLongResponseConstant:
			decisions = append(decisions, Decision{Kind: DecisionIgnore})
		default:
			decisions = append(decisions, Decision{Kind: DecisionIgnore})
		}
	}
	return decisions, nil
}

func (prompter *IOApprovalPrompter) promptLine(prompt string) (string, error) {
	if prompter.writer != nil {
		if _, writeError := io.WriteString(prompter.writer, prompt); writeError != nil {
			return "", writeError
		}
	}
	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && readError != io.EOF {
		return "", readError
	}
	return strings.TrimSpace(strings.ToLower(response)), nil
}

// IOConflictArbiter asks the user how to proceed when a rebase step conflicts.
type IOConflictArbiter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOConflictArbiter constructs an arbiter from the provided reader and writer.
func NewIOConflictArbiter(input io.Reader, output io.Writer) *IOConflictArbiter {
	return &IOConflictArbiter{reader: bufio.NewReader(input), writer: output}
}

// DecideConflict reports the conflict and interprets the user's chosen action.
// Unrecognized input aborts: rollback is the safe default mid-rebase.
func (arbiter *IOConflictArbiter) DecideConflict(_ context.Context, report strategy.ConflictReport) (strategy.ConflictDecision, error) {
	prompt := fmt.Sprintf(conflictPromptTemplateConstant, report.TargetCommit, strings.Join(report.ConflictedFiles, conflictedFileSeparatorConstant))
	if arbiter.writer != nil {
		if _, writeError := io.WriteString(arbiter.writer, prompt); writeError != nil {
			return strategy.ConflictDecisionAbort, writeError
		}
	}
	response, readError := arbiter.reader.ReadString('\n')
	if readError != nil && readError != io.EOF {
		return strategy.ConflictDecisionAbort, readError
	}
	switch strings.TrimSpace(strings.ToLower(response)) {
	case continueShortResponseConstant, continueLongResponseConstant:
		return strategy.ConflictDecisionContinue, nil
	case skipShortResponseConstant, skipLongResponseConstant:
		return strategy.ConflictDecisionSkip, nil
	default:
		return strategy.ConflictDecisionAbort, nil
	}
}

// IOConfirmationPrompter asks a single yes/no question over a line-oriented
// reader and writer pair. Anything other than an explicit yes declines.
type IOConfirmationPrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOConfirmationPrompter constructs a prompter from the provided reader and writer.
func NewIOConfirmationPrompter(input io.Reader, output io.Writer) *IOConfirmationPrompter {
	return &IOConfirmationPrompter{reader: bufio.NewReader(input), writer: output}
}

// Confirm writes the prompt and interprets the response.
func (prompter *IOConfirmationPrompter) Confirm(prompt string) (bool, error) {
	if prompter.writer != nil {
		if _, writeError := io.WriteString(prompter.writer, prompt); writeError != nil {
			return false, writeError
		}
	}
	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && readError != io.EOF {
		return false, readError
	}
	normalizedResponse := strings.TrimSpace(strings.ToLower(response))
	return normalizedResponse == approveShortResponseConstant || normalizedResponse == approveLongResponseConstant, nil
}

// AbortConflictArbiter always aborts. Non-interactive runs must never stall on
// a conflict prompt.
type AbortConflictArbiter struct{}

// NewAbortConflictArbiter constructs an AbortConflictArbiter.
func NewAbortConflictArbiter() AbortConflictArbiter {
	return AbortConflictArbiter{}
}

// DecideConflict resolves every conflict by aborting the rebase.
func (arbiter AbortConflictArbiter) DecideConflict(_ context.Context, _ strategy.ConflictReport) (strategy.ConflictDecision, error) {
	return strategy.ConflictDecisionAbort, nil
}
