package strategy

import (
	"context"
	"fmt"
	"strings"
)

const (
	worktreeStrategyNameConstant = "worktree"
	indexStrategyNameConstant    = "index"
	autoStrategyNameConstant     = "auto"

	unknownStrategyMessageTemplateConstant = "unknown execution strategy: %s"

	selectionReasonRequestedConstant           = "strategy requested explicitly"
	selectionReasonWorktreeSupportedConstant   = "worktree capability detected"
	selectionReasonWorktreeUnsupportedConstant = "worktree capability missing"
)

// Strategy names one execution strategy.
type Strategy string

// Known strategies. StrategyAuto defers the choice to capability detection.
const (
	StrategyWorktree Strategy = Strategy(worktreeStrategyNameConstant)
	StrategyIndex    Strategy = Strategy(indexStrategyNameConstant)
	StrategyAuto     Strategy = Strategy(autoStrategyNameConstant)
)

// UnknownStrategyError reports a strategy name outside the closed set.
type UnknownStrategyError struct {
	Value string
}

// Error describes the unknown strategy.
func (unknownError UnknownStrategyError) Error() string {
	return fmt.Sprintf(unknownStrategyMessageTemplateConstant, unknownError.Value)
}

// ParseStrategy normalizes a configured strategy name. Empty input selects
// automatic detection.
func ParseStrategy(value string) (Strategy, error) {
	normalizedValue := strings.ToLower(strings.TrimSpace(value))
	switch normalizedValue {
	case "":
		return StrategyAuto, nil
	case worktreeStrategyNameConstant:
		return StrategyWorktree, nil
	case indexStrategyNameConstant:
		return StrategyIndex, nil
	case autoStrategyNameConstant:
		return StrategyAuto, nil
	}
	return "", UnknownStrategyError{Value: value}
}

// Capabilities captures what the repository's git installation supports.
type Capabilities struct {
	WorktreeSupported bool
}

// CapabilityService probes repository capabilities.
type CapabilityService interface {
	WorktreeSupported(executionContext context.Context, repositoryPath string) bool
}

// DetectCapabilities probes the repository for strategy-relevant support.
func DetectCapabilities(executionContext context.Context, service CapabilityService, repositoryPath string) Capabilities {
	return Capabilities{WorktreeSupported: service.WorktreeSupported(executionContext, repositoryPath)}
}

// Selection is the outcome of strategy selection with its reasoning.
type Selection struct {
	Strategy Strategy
	Reason   string
}

// SelectStrategy resolves the requested strategy against detected
// capabilities. An explicit worktree request without worktree support
// degrades to the index strategy.
func SelectStrategy(capabilities Capabilities, requested Strategy) Selection {
	switch requested {
	case StrategyIndex:
		return Selection{Strategy: StrategyIndex, Reason: selectionReasonRequestedConstant}
	case StrategyWorktree:
		if capabilities.WorktreeSupported {
			return Selection{Strategy: StrategyWorktree, Reason: selectionReasonRequestedConstant}
		}
		return Selection{Strategy: StrategyIndex, Reason: selectionReasonWorktreeUnsupportedConstant}
	}

	if capabilities.WorktreeSupported {
		return Selection{Strategy: StrategyWorktree, Reason: selectionReasonWorktreeSupportedConstant}
	}
	return Selection{Strategy: StrategyIndex, Reason: selectionReasonWorktreeUnsupportedConstant}
}
