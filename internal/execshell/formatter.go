package execshell

import (
	"fmt"
	"strings"
)

const (
	formatterStartedMessageTemplateConstant          = "Running %s %s"
	formatterSuccessMessageTemplateConstant          = "Completed %s %s"
	formatterFailureMessageTemplateConstant          = "Command %s %s exited with code %d"
	formatterExecutionFailureMessageTemplateConstant = "Command %s %s failed to execute: %v"
	formatterFailureDetailTemplateConstant           = "%s: %s"
)

// CommandMessageFormatter renders human-readable command lifecycle messages.
type CommandMessageFormatter struct{}

// BuildStartedMessage renders the command start message.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return fmt.Sprintf(formatterStartedMessageTemplateConstant, command.Name, joinedArguments(command))
}

// BuildSuccessMessage renders the command success message.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return fmt.Sprintf(formatterSuccessMessageTemplateConstant, command.Name, joinedArguments(command))
}

// BuildFailureMessage renders the message for commands exiting non-zero.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	baseMessage := fmt.Sprintf(formatterFailureMessageTemplateConstant, command.Name, joinedArguments(command), result.ExitCode)
	detail := strings.TrimSpace(result.StandardError)
	if len(detail) == 0 {
		return baseMessage
	}
	return fmt.Sprintf(formatterFailureDetailTemplateConstant, baseMessage, firstLine(detail))
}

// BuildExecutionFailureMessage renders the message for runner failures.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, cause error) string {
	return fmt.Sprintf(formatterExecutionFailureMessageTemplateConstant, command.Name, joinedArguments(command), cause)
}

func (formatter CommandMessageFormatter) shouldLogStartMessage(command ShellCommand) bool {
	return len(command.Details.Arguments) > 0
}

func joinedArguments(command ShellCommand) string {
	return strings.Join(command.Details.Arguments, " ")
}

func firstLine(text string) string {
	lines := strings.Split(text, "\n")
	return strings.TrimSpace(lines[0])
}
