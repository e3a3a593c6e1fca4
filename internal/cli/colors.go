package cli

import (
	"github.com/loomkit/loom/internal/hookrunner"
	"github.com/loomkit/loom/internal/workspace"
)

// ANSI escape codes for terminal colors.
const (
	ansiGreen  = "\033[32m"
	ansiCyan   = "\033[36m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiDim    = "\033[2m"
	ansiReset  = "\033[0m"
)

// workspaceStateDisplay returns the symbol and color for a workspace state.
func workspaceStateDisplay(state workspace.State) (symbol, color string) {
	switch state {
	case workspace.StateRunning:
		return "⟳", ansiGreen
	case workspace.StateStopping, workspace.StateCleaning:
		return "◎", ansiYellow
	case workspace.StateStopped:
		return "·", ansiDim
	default:
		return "◯", ansiReset
	}
}

// hookStateDisplay returns the symbol and color for a hook's last status.
func hookStateDisplay(state string) (symbol, color string) {
	switch state {
	case hookrunner.StateRunning:
		return "⟳", ansiYellow
	case hookrunner.StateFailed:
		return "✗", ansiRed
	case hookrunner.StateSkipped:
		return "⊘", ansiDim
	case hookrunner.StateIdle:
		return "✓", ansiGreen
	default:
		return "·", ansiDim
	}
}
