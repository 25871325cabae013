// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/fcid/fcauth/oidc"
	"github.com/fcid/fcauth/oidc/callback"
)

const successHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>fcauth</title></head>
<body><p>Signed in. You can close this window and return to the terminal.</p></body>
</html>
`

// successResponse returns a SuccessResponseFunc which tells the browser to
// go back to the terminal.
func successResponse(errOut io.Writer) callback.SuccessResponseFunc {
	return func(_ string, _ *oidc.User, w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(successHTML)); err != nil {
			fmt.Fprintf(errOut, "error writing successful response: %s\n", err)
		}
	}
}

// failedResponse returns an ErrorResponseFunc which shows the browser what
// went wrong.
func failedResponse(errOut io.Writer) callback.ErrorResponseFunc {
	const op = "failedResponse"
	return func(_ string, r *callback.AuthenErrorResponse, e error, w http.ResponseWriter, _ *http.Request) {
		var msg string
		switch {
		case e != nil:
			msg = e.Error()
			w.WriteHeader(http.StatusInternalServerError)
		case r != nil:
			msg = fmt.Sprintf("callback error from oidc provider: %s: %s", r.Error, r.Description)
			w.WriteHeader(http.StatusUnauthorized)
		default:
			msg = "unknown error from callback"
			w.WriteHeader(http.StatusInternalServerError)
		}
		if _, err := w.Write([]byte(msg)); err != nil {
			fmt.Fprintf(errOut, "%s: error writing failed response: %s\n", op, err)
		}
	}
}
