// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"fmt"

	"github.com/pterm/pterm"
)

// PresentError formats an error for user display with secrets masked.
func PresentError(context string, err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", context, Mask(err.Error()))
}

// PrintError prints a masked error block, followed by an optional hint.
func PrintError(context string, err error, hint string) {
	if err == nil {
		return
	}
	pterm.Error.Println(PresentError(context, err))
	if hint != "" {
		pterm.Info.Println(hint)
	}
}
