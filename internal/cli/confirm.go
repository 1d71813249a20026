package cli

import (
	"os"

	"github.com/hassrename/hren/internal/ui"
)

func shouldPromptForConfirm() bool {
	if isJSONOutput() {
		return false
	}
	return ui.IsInteractive()
}

func promptForConfirm(message string) bool {
	if !shouldPromptForConfirm() {
		return false
	}
	return ui.Confirm(os.Stdin, os.Stdout, message)
}
