// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// browser is an oidc.Navigator which prints the URL and, unless disabled,
// opens it in the user's default browser.
type browser struct {
	out      io.Writer
	disabled bool
}

func (b *browser) Navigate(_ context.Context, url string) error {
	fmt.Fprintf(b.out, "Continue in your browser at:\n\n    %s\n\n", url)
	if b.disabled {
		return nil
	}
	if err := openURL(url); err != nil {
		fmt.Fprintf(b.out, "Error attempting to automatically open browser: '%s'.\nPlease visit the URL manually.\n", err)
	}
	return nil
}

// openURL opens url in the default browser.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
