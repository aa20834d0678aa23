package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tyemirov/autosquash/internal/strategy"
)

const (
	worktreeSupportedTextConstant       = "supported"
	worktreeMissingTextConstant         = "missing"
	worktreeCapabilityTemplateConstant  = "worktree capability: %s\n"
	selectedStrategyTemplateConstant    = "selected strategy: %s (%s)\n"
	environmentOverrideTemplateConstant = "environment override: GIT_AUTOSQUASH_STRATEGY=%s\n"
)

func (application *Application) newStrategyInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   strategyInfoCommandUseConstant,
		Short: strategyInfoCommandShortDescriptionConstant,
		RunE:  application.runStrategyInfo,
	}
}

func (application *Application) runStrategyInfo(command *cobra.Command, _ []string) error {
	requestedStrategy, strategyError := strategy.ParseStrategy(application.resolveStrategyValue(command))
	if strategyError != nil {
		return strategyError
	}

	capabilityInspector, inspectorError := application.capabilityInspectorFactory()
	if inspectorError != nil {
		return inspectorError
	}

	repositoryRoot, rootError := capabilityInspector.RepositoryRoot(command.Context(), application.repositoryFlagValue)
	if rootError != nil {
		return rootError
	}

	capabilities := strategy.Capabilities{WorktreeSupported: capabilityInspector.WorktreeSupported(command.Context(), repositoryRoot)}
	selection := strategy.SelectStrategy(capabilities, requestedStrategy)

	outputWriter := command.OutOrStdout()
	worktreeSupportText := worktreeMissingTextConstant
	if capabilities.WorktreeSupported {
		worktreeSupportText = worktreeSupportedTextConstant
	}
	fmt.Fprintf(outputWriter, worktreeCapabilityTemplateConstant, worktreeSupportText)
	fmt.Fprintf(outputWriter, selectedStrategyTemplateConstant, selection.Strategy, selection.Reason)
	if environmentStrategy := strings.TrimSpace(os.Getenv(strategyEnvironmentNameConstant)); len(environmentStrategy) > 0 {
		fmt.Fprintf(outputWriter, environmentOverrideTemplateConstant, environmentStrategy)
	}
	return nil
}
