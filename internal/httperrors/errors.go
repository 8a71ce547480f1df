// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies transport and HTTP failures against the
// Databricks workspace and turns them into user-facing hints.
package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	bierrors "bichat/cli/internal/errors"

	"github.com/pterm/pterm"
)

// Classify maps a transport error returned by http.Client.Do to an error kind.
// Context cancellation by the caller is not a transport failure and yields "".
func Classify(err error) bierrors.Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return ""
	case isTimeoutError(err):
		return bierrors.Timeout
	default:
		return bierrors.Connection
	}
}

// ClassifyStatus maps a non-200 HTTP status code to an error kind.
func ClassifyStatus(code int) bierrors.Kind {
	switch code {
	case http.StatusUnauthorized:
		return bierrors.AuthFailed
	case http.StatusForbidden:
		return bierrors.Forbidden
	case http.StatusNotFound:
		return bierrors.NotFound
	default:
		return bierrors.HTTP
	}
}

// Terminal reports whether a probe over endpoint variants should stop at this kind.
// Credentials that fail on one variant fail on all of them.
func Terminal(kind bierrors.Kind) bool {
	return kind == bierrors.AuthFailed || kind == bierrors.Forbidden
}

// FormatNetworkError displays a hint for a network error and returns it wrapped.
func FormatNetworkError(err error, context string) error {
	if err == nil {
		return nil
	}
	displayErrorMessage(err, context)
	return fmt.Errorf("network error: %w", err)
}

// Present prints the hint block for an error returned by one of the clients.
// Typed errors get kind-specific advice; anything else falls back to network detection.
func Present(err error, context string) {
	if err == nil {
		return
	}
	switch bierrors.KindOf(err) {
	case bierrors.AuthFailed:
		showAuthError(context)
	case bierrors.Forbidden:
		showForbiddenError(context)
	case bierrors.Unconfigured:
		showUnconfiguredError(context, err)
	case bierrors.Timeout:
		showTimeoutError(context)
	default:
		displayErrorMessage(err, context)
	}
}

func displayErrorMessage(err error, context string) {
	errStr := err.Error()

	if isTimeoutError(err) {
		showTimeoutError(context)
		return
	}
	if isDNSError(err) {
		showDNSError(context)
		return
	}
	if isConnectionRefusedError(err) {
		showConnectionRefusedError(context)
		return
	}
	if isSSLError(err) {
		showSSLError(context)
		return
	}
	if isServerError(errStr) {
		showServerError(context)
		return
	}
	showGenericError(context, errStr)
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.ECONNREFUSED)
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate")
}

func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, s := range []string{"http 500", "http 502", "http 503", "http 504", "internal server error", "bad gateway", "service unavailable"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func showAuthError(context string) {
	pterm.Printf("🔑 Authentication failed while %s\n", context)
	pterm.Println()
	pterm.Println("The workspace rejected the access token. Check that:")
	pterm.Println("  • DATABRICKS_TOKEN holds a valid personal access token")
	pterm.Println("  • The token has not expired or been revoked")
	pterm.Println()
	pterm.Println("Store a new token with: bichat login")
	pterm.Println()
}

func showForbiddenError(context string) {
	pterm.Printf("🚫 Access forbidden while %s\n", context)
	pterm.Println()
	pterm.Println("The token is valid but cannot use this resource.")
	pterm.Println("Ask a workspace admin to share the Genie space or SQL warehouse with you.")
	pterm.Println()
}

func showUnconfiguredError(context string, err error) {
	pterm.Printf("⚙️  Missing configuration while %s\n", context)
	pterm.Println()
	pterm.Println(err.Error())
	pterm.Println()
	pterm.Println("Run 'bichat config' to see which settings are in effect.")
	pterm.Println()
}

func showTimeoutError(context string) {
	pterm.Printf("⏱️  Timeout while %s\n", context)
	pterm.Println()
	pterm.Println("The workspace took too long to respond. This could mean:")
	pterm.Println("  • The question needs a complex query")
	pterm.Println("  • Slow network connection")
	pterm.Println("  • The Genie service or SQL warehouse is overloaded or still starting")
	pterm.Println()
	pterm.Println("Try a simpler question or try again in a few moments.")
	pterm.Println()
}

func showDNSError(context string) {
	pterm.Printf("🌐 Cannot resolve workspace address while %s\n", context)
	pterm.Println()
	pterm.Println("Check that DATABRICKS_HOST is spelled correctly and that DNS works on this network.")
	pterm.Println()
}

func showConnectionRefusedError(context string) {
	pterm.Printf("🚫 Connection refused while %s\n", context)
	pterm.Println()
	pterm.Println("The host is not accepting connections. Check the host and port in DATABRICKS_HOST")
	pterm.Println("and any firewall or VPN between you and the workspace.")
	pterm.Println()
}

func showSSLError(context string) {
	pterm.Printf("🔒 Secure connection failed while %s\n", context)
	pterm.Println()
	pterm.Println("Cannot establish HTTPS to the workspace. Check proxy settings and the system clock.")
	pterm.Println()
}

func showServerError(context string) {
	pterm.Printf("⚠️  Server error while %s\n", context)
	pterm.Println()
	pterm.Println("The workspace returned an internal error. This is usually transient; try again shortly.")
	pterm.Println()
}

func showGenericError(context string, errDetails string) {
	pterm.Printf("❌ Cannot reach the Databricks workspace while %s\n", context)
	pterm.Println()
	pterm.Println("Run 'bichat doctor' for a step-by-step connectivity check.")
	pterm.Println()
	if errDetails != "" {
		pterm.Debug.Printf("Technical details: %s\n", Truncate(errDetails, 100))
		pterm.Println()
	}
}

// ExtractHostFromURL extracts the hostname from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}

// Truncate shortens s to n bytes, appending "..." when cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
