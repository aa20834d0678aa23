package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tyemirov/autosquash/internal/autosquash"
	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	noopReportTemplateConstant    = "%s\n"
	successReportTemplateConstant = "autosquash complete: %d approved, %d ignored (%s strategy)\n"
	skippedTargetTemplateConstant = "skipped fixup for %.7s\n"
	backupStashTemplateConstant   = "backup stash kept: %s\n"

	abortedRecoveryNoteConstant = "repository restored from backup"
)

func (application *Application) runPipeline(command *cobra.Command, _ []string) error {
	requestedStrategy, strategyError := strategy.ParseStrategy(application.resolveStrategyValue(command))
	if strategyError != nil {
		return strategyError
	}

	options := autosquash.Options{
		RepositoryPath: application.repositoryFlagValue,
		BaseRevision:   application.resolveBaseValue(command),
		LineByLine:     application.resolveLineByLineValue(command),
		Strategy:       requestedStrategy,
	}

	pipelineRunner, buildError := application.pipelineFactory(command, application.resolveAutoAcceptValue(command))
	if buildError != nil {
		return buildError
	}

	report, executionError := pipelineRunner.Execute(command.Context(), options)
	if executionError != nil {
		return executionError
	}
	return application.printReport(command, report)
}

func (application *Application) printReport(command *cobra.Command, report autosquash.Report) error {
	if report.State == strategy.OutcomeStateAborted {
		return autosquash.FlowError{
			Kind:         autosquash.FailureKindRebaseConflict,
			Artifact:     report.Reason,
			RecoveryNote: abortedRecoveryNoteConstant,
		}
	}

	outputWriter := command.OutOrStdout()
	if report.ApprovedCount == 0 && len(report.Reason) > 0 {
		fmt.Fprintf(outputWriter, noopReportTemplateConstant, report.Reason)
		return nil
	}

	fmt.Fprintf(outputWriter, successReportTemplateConstant, report.ApprovedCount, report.IgnoredCount, report.StrategyUsed)
	for _, skippedTarget := range report.SkippedTargets {
		fmt.Fprintf(outputWriter, skippedTargetTemplateConstant, skippedTarget)
	}
	if report.StashKeptForUser && len(report.BackupStash) > 0 {
		fmt.Fprintf(outputWriter, backupStashTemplateConstant, report.BackupStash)
	}
	return nil
}

func (application *Application) resolveStrategyValue(command *cobra.Command) string {
	if application.persistentFlagChanged(command, strategyFlagNameConstant) {
		return application.strategyFlagValue
	}
	if environmentStrategy := strings.TrimSpace(os.Getenv(strategyEnvironmentNameConstant)); len(environmentStrategy) > 0 {
		return environmentStrategy
	}
	return application.configuration.Autosquash.Strategy
}

func (application *Application) resolveBaseValue(command *cobra.Command) string {
	if application.persistentFlagChanged(command, baseFlagNameConstant) {
		return application.baseFlagValue
	}
	return application.configuration.Autosquash.Base
}

func (application *Application) resolveLineByLineValue(command *cobra.Command) bool {
	if application.persistentFlagChanged(command, lineByLineFlagNameConstant) {
		return application.lineByLineFlagValue
	}
	return application.configuration.Autosquash.LineByLine
}

func (application *Application) resolveAutoAcceptValue(command *cobra.Command) bool {
	if application.persistentFlagChanged(command, autoAcceptFlagNameConstant) {
		return application.autoAcceptFlagValue
	}
	return application.configuration.Autosquash.AutoAccept
}
