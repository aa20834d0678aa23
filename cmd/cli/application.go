package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/tyemirov/autosquash/internal/autosquash"
	"github.com/tyemirov/autosquash/internal/utils"
	"github.com/tyemirov/autosquash/internal/version"
)

const (
	rootCommandUseConstant                      = "autosquash"
	rootCommandShortDescriptionConstant         = "Squash uncommitted changes into the commits that last touched them"
	rootCommandLongDescriptionConstant          = "autosquash maps every uncommitted change onto the feature-branch commit that last touched the same lines, asks for approval, and rewrites the branch so each change lands in its originating commit."
	versionCommandUseConstant                   = "version"
	versionCommandShortDescriptionConstant      = "Print the application version"
	strategyInfoCommandUseConstant              = "strategy-info"
	strategyInfoCommandShortDescriptionConstant = "Show detected git capabilities and the strategy that would run"

	configurationFlagNameConstant = "config"
	logLevelFlagNameConstant      = "log-level"
	logFormatFlagNameConstant     = "log-format"
	versionFlagNameConstant       = "version"
	initializeFlagNameConstant    = "init"
	forceFlagNameConstant         = "force"
	repositoryFlagNameConstant    = "repository"
	baseFlagNameConstant          = "base"
	strategyFlagNameConstant      = "strategy"
	lineByLineFlagNameConstant    = "line-by-line"
	autoAcceptFlagNameConstant    = "auto-accept"

	configurationFlagDescriptionConstant = "path to an explicit configuration file"
	logLevelFlagDescriptionConstant      = "minimum diagnostic log level (debug, info, warn, error)"
	logFormatFlagDescriptionConstant     = "diagnostic log encoding (structured, console)"
	versionFlagDescriptionConstant       = "print the application version and exit"
	initializeFlagDescriptionConstant    = "write a default configuration file (local or user scope)"
	forceFlagDescriptionConstant         = "overwrite an existing configuration file during --init"
	repositoryFlagDescriptionConstant    = "path to the repository to operate on"
	baseFlagDescriptionConstant          = "base revision bounding the rewritable commit range"
	strategyFlagDescriptionConstant      = "execution strategy (worktree, index, auto)"
	lineByLineFlagDescriptionConstant    = "split every change into single-line pieces before targeting"
	autoAcceptFlagDescriptionConstant    = "apply unambiguous targets without prompting"

	configurationFileNameConstant      = "config"
	configurationFileTypeConstant      = "yaml"
	environmentPrefixConstant          = "AUTOSQUASH"
	configurationDirectoryNameConstant = ".autosquash"
	currentDirectoryConstant           = "."
	configurationFileFullNameConstant  = "config.yaml"

	commonLogLevelConfigurationKeyConstant  = "common.log_level"
	commonLogFormatConfigurationKeyConstant = "common.log_format"

	searchPathEnvironmentNameConstant = "AUTOSQUASH_CONFIG_SEARCH_PATH"
	strategyEnvironmentNameConstant   = "GIT_AUTOSQUASH_STRATEGY"
	logLevelEnvironmentNameConstant   = "GIT_AUTOSQUASH_LOG_LEVEL"

	initializeScopeLocalConstant           = "local"
	initializeScopeUserConstant            = "user"
	unknownInitializeScopeTemplateConstant = "unknown initialization scope: %s"
	configurationExistsTemplateConstant    = "configuration file already exists: %s"
	configurationWrittenTemplateConstant   = "configuration written to %s\n"

	configurationDirectoryPermissionsConstant = os.FileMode(0o755)
	configurationFilePermissionsConstant      = os.FileMode(0o600)

	versionTemplateConstant = "autosquash version: %s\n"

	exitCodeSuccessConstant        = 0
	exitCodeGenericFailureConstant = 1
)

// PipelineRunner executes one configured autosquash run.
type PipelineRunner interface {
	Execute(executionContext context.Context, options autosquash.Options) (autosquash.Report, error)
}

// CapabilityInspector exposes the repository probes strategy reporting needs.
type CapabilityInspector interface {
	RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error)
	WorktreeSupported(executionContext context.Context, repositoryPath string) bool
}

type loggerOutputsFactory interface {
	CreateLoggerOutputs(requestedLogLevel utils.LogLevel, requestedLogFormat utils.LogFormat) (utils.LoggerOutputs, error)
}

type pipelineRunnerFactory func(command *cobra.Command, autoAccept bool) (PipelineRunner, error)

type capabilityInspectorFactory func() (CapabilityInspector, error)

// Application wires configuration, logging, and the command tree together.
type Application struct {
	rootCommand                *cobra.Command
	loggerFactory              loggerOutputsFactory
	logger                     *zap.Logger
	consoleLogger              *zap.Logger
	configuration              ApplicationConfiguration
	configurationMetadata      utils.ConfigurationMetadata
	configurationFilePath      string
	logLevelFlagValue          string
	logFormatFlagValue         string
	commandContextAccessor     utils.CommandContextAccessor
	versionFlagValue           bool
	versionResolver            func(executionContext context.Context) string
	exitFunction               func(exitCode int)
	initializeScopeValue       string
	forceInitializeValue       bool
	repositoryFlagValue        string
	baseFlagValue              string
	strategyFlagValue          string
	lineByLineFlagValue        bool
	autoAcceptFlagValue        bool
	inputReader                io.Reader
	pipelineFactory            pipelineRunnerFactory
	capabilityInspectorFactory capabilityInspectorFactory
}

// NewApplication constructs the command-line application with production
// collaborators.
func NewApplication() *Application {
	application := &Application{
		loggerFactory:          utils.NewLoggerFactory(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		versionResolver: func(executionContext context.Context) string {
			return version.Detect(executionContext, version.Dependencies{})
		},
		exitFunction: os.Exit,
		inputReader:  os.Stdin,
	}
	application.pipelineFactory = application.buildPipelineRunner
	application.capabilityInspectorFactory = application.buildCapabilityInspector
	application.rootCommand = application.newRootCommand()
	return application
}

// Execute runs the command tree and flushes loggers before returning.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	application.flushLoggers()
	return executionError
}

// ExitCodeForError maps an execution error to the process exit code contract.
func ExitCodeForError(executionError error) int {
	if executionError == nil {
		return exitCodeSuccessConstant
	}
	var flowError autosquash.FlowError
	if errors.As(executionError, &flowError) {
		return autosquash.ExitCodeForFailure(flowError.Kind)
	}
	return exitCodeGenericFailureConstant
}

func (application *Application) newRootCommand() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:               rootCommandUseConstant,
		Short:             rootCommandShortDescriptionConstant,
		Long:              rootCommandLongDescriptionConstant,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: application.initializeExecution,
		RunE:              application.runPipeline,
	}

	persistentFlags := rootCommand.PersistentFlags()
	persistentFlags.StringVar(&application.configurationFilePath, configurationFlagNameConstant, "", configurationFlagDescriptionConstant)
	persistentFlags.StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagDescriptionConstant)
	persistentFlags.StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagDescriptionConstant)
	persistentFlags.BoolVar(&application.versionFlagValue, versionFlagNameConstant, false, versionFlagDescriptionConstant)
	persistentFlags.StringVar(&application.initializeScopeValue, initializeFlagNameConstant, "", initializeFlagDescriptionConstant)
	persistentFlags.BoolVar(&application.forceInitializeValue, forceFlagNameConstant, false, forceFlagDescriptionConstant)
	persistentFlags.StringVar(&application.repositoryFlagValue, repositoryFlagNameConstant, currentDirectoryConstant, repositoryFlagDescriptionConstant)
	persistentFlags.StringVar(&application.strategyFlagValue, strategyFlagNameConstant, "", strategyFlagDescriptionConstant)

	localFlags := rootCommand.Flags()
	localFlags.StringVar(&application.baseFlagValue, baseFlagNameConstant, "", baseFlagDescriptionConstant)
	localFlags.BoolVar(&application.lineByLineFlagValue, lineByLineFlagNameConstant, false, lineByLineFlagDescriptionConstant)
	localFlags.BoolVar(&application.autoAcceptFlagValue, autoAcceptFlagNameConstant, false, autoAcceptFlagDescriptionConstant)

	rootCommand.AddCommand(application.newVersionCommand())
	rootCommand.AddCommand(application.newStrategyInfoCommand())
	return rootCommand
}

func (application *Application) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   versionCommandUseConstant,
		Short: versionCommandShortDescriptionConstant,
		RunE: func(command *cobra.Command, _ []string) error {
			application.printVersion(command)
			return nil
		},
	}
}

func (application *Application) initializeExecution(command *cobra.Command, _ []string) error {
	if len(strings.TrimSpace(application.initializeScopeValue)) > 0 {
		if initializationError := application.initializeConfigurationFile(command); initializationError != nil {
			return initializationError
		}
		application.exitFunction(exitCodeSuccessConstant)
		return nil
	}

	if configurationError := application.initializeConfiguration(command); configurationError != nil {
		return configurationError
	}

	if application.versionFlagValue {
		application.printVersion(command)
		application.exitFunction(exitCodeSuccessConstant)
	}
	return nil
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	configurationLoader := utils.NewConfigurationLoader(configurationFileNameConstant, configurationFileTypeConstant, environmentPrefixConstant, resolveConfigurationSearchPaths())
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration(), configurationFileTypeConstant)

	defaultValues := map[string]any{
		commonLogLevelConfigurationKeyConstant:  string(utils.LogLevelError),
		commonLogFormatConfigurationKeyConstant: string(utils.LogFormatStructured),
	}

	configurationMetadata, loadError := configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return loadError
	}
	application.configurationMetadata = configurationMetadata

	if environmentLogLevel := strings.TrimSpace(os.Getenv(logLevelEnvironmentNameConstant)); len(environmentLogLevel) > 0 {
		application.configuration.Common.LogLevel = environmentLogLevel
	}
	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	loggerOutputs, loggerError := application.loggerFactory.CreateLoggerOutputs(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerError != nil {
		return loggerError
	}
	application.logger = loggerOutputs.DiagnosticLogger
	application.consoleLogger = loggerOutputs.ConsoleLogger

	commandContext := application.commandContextAccessor.WithConfigurationFilePath(command.Context(), application.configurationMetadata.ConfigFileUsed)
	commandContext = application.commandContextAccessor.WithLogLevel(commandContext, application.configuration.Common.LogLevel)
	commandContext = application.commandContextAccessor.WithExecutionFlags(commandContext, utils.ExecutionFlags{
		AutoAccept:    application.autoAcceptFlagValue,
		AutoAcceptSet: application.persistentFlagChanged(command, autoAcceptFlagNameConstant),
		LineByLine:    application.lineByLineFlagValue,
		LineByLineSet: application.persistentFlagChanged(command, lineByLineFlagNameConstant),
		Strategy:      application.strategyFlagValue,
		StrategySet:   application.persistentFlagChanged(command, strategyFlagNameConstant),
	})
	command.SetContext(commandContext)
	return nil
}

func (application *Application) initializeConfigurationFile(command *cobra.Command) error {
	normalizedScope := strings.ToLower(strings.TrimSpace(application.initializeScopeValue))

	var targetPath string
	switch normalizedScope {
	case initializeScopeLocalConstant:
		targetPath = configurationFileFullNameConstant
	case initializeScopeUserConstant:
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return homeError
		}
		targetPath = filepath.Join(homeDirectory, configurationDirectoryNameConstant, configurationFileFullNameConstant)
	default:
		return fmt.Errorf(unknownInitializeScopeTemplateConstant, application.initializeScopeValue)
	}

	if !application.forceInitializeValue {
		if _, statError := os.Stat(targetPath); statError == nil {
			return fmt.Errorf(configurationExistsTemplateConstant, targetPath)
		}
	}

	if targetDirectory := filepath.Dir(targetPath); targetDirectory != currentDirectoryConstant {
		if directoryError := os.MkdirAll(targetDirectory, configurationDirectoryPermissionsConstant); directoryError != nil {
			return directoryError
		}
	}
	if writeError := os.WriteFile(targetPath, EmbeddedDefaultConfiguration(), configurationFilePermissionsConstant); writeError != nil {
		return writeError
	}

	fmt.Fprintf(command.OutOrStdout(), configurationWrittenTemplateConstant, targetPath)
	return nil
}

func (application *Application) printVersion(command *cobra.Command) {
	fmt.Fprintf(command.OutOrStdout(), versionTemplateConstant, application.versionResolver(command.Context()))
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	return flagChangedIn(command.PersistentFlags(), flagName) ||
		flagChangedIn(command.InheritedFlags(), flagName) ||
		flagChangedIn(command.Flags(), flagName) ||
		flagChangedIn(application.rootCommand.PersistentFlags(), flagName)
}

func flagChangedIn(flagSet *pflag.FlagSet, flagName string) bool {
	lookedUpFlag := flagSet.Lookup(flagName)
	return lookedUpFlag != nil && lookedUpFlag.Changed
}

func (application *Application) runtimeLogger() *zap.Logger {
	if application.logger == nil {
		return zap.NewNop()
	}
	return application.logger
}

func (application *Application) flushLoggers() {
	syncLoggerInstance(application.logger)
	syncLoggerInstance(application.consoleLogger)
}

func syncLoggerInstance(logger *zap.Logger) {
	if logger == nil {
		return
	}
	syncError := logger.Sync()
	if syncError == nil {
		return
	}
	if errors.Is(syncError, syscall.ENOTSUP) || errors.Is(syncError, syscall.EINVAL) || errors.Is(syncError, syscall.EBADF) || errors.Is(syncError, syscall.ENOTTY) {
		return
	}
}

func resolveConfigurationSearchPaths() []string {
	if environmentSearchPath := strings.TrimSpace(os.Getenv(searchPathEnvironmentNameConstant)); len(environmentSearchPath) > 0 {
		rawPaths := strings.Split(environmentSearchPath, string(os.PathListSeparator))
		searchPaths := make([]string, 0, len(rawPaths))
		for _, rawPath := range rawPaths {
			trimmedPath := strings.TrimSpace(rawPath)
			if len(trimmedPath) > 0 {
				searchPaths = appendUnique(searchPaths, trimmedPath)
			}
		}
		return searchPaths
	}

	searchPaths := []string{currentDirectoryConstant}
	if xdgConfigHome := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); len(xdgConfigHome) > 0 {
		searchPaths = appendUnique(searchPaths, filepath.Join(xdgConfigHome, configurationDirectoryNameConstant))
	}
	if userConfigDirectory, configError := os.UserConfigDir(); configError == nil {
		searchPaths = appendUnique(searchPaths, filepath.Join(userConfigDirectory, configurationDirectoryNameConstant))
	}
	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil {
		searchPaths = appendUnique(searchPaths, filepath.Join(homeDirectory, configurationDirectoryNameConstant))
	}
	return searchPaths
}

func appendUnique(existingValues []string, candidateValue string) []string {
	for _, existingValue := range existingValues {
		if existingValue == candidateValue {
			return existingValues
		}
	}
	return append(existingValues, candidateValue)
}
