// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package logging

import (
	"errors"
	"strings"

	"github.com/pterm/pterm"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCErrorType is the category of a chat bridge failure.
type GRPCErrorType int

const (
	GRPCErrorUnknown GRPCErrorType = iota
	GRPCErrorNetwork
	GRPCErrorAuth
	GRPCErrorTimeout
	GRPCErrorInternal
	GRPCErrorUnavailable
	GRPCErrorInvalid
)

// ParseGRPCError categorizes a bridge error, by status code when present and
// by message otherwise.
func ParseGRPCError(err error) GRPCErrorType {
	if err == nil {
		return GRPCErrorUnknown
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return GRPCErrorAuth
		case codes.DeadlineExceeded:
			return GRPCErrorTimeout
		case codes.Unavailable:
			if isNetworkText(st.Message()) {
				return GRPCErrorNetwork
			}
			return GRPCErrorUnavailable
		case codes.Internal:
			return GRPCErrorInternal
		case codes.InvalidArgument:
			return GRPCErrorInvalid
		}
	}
	lower := strings.ToLower(err.Error())
	switch {
	case isNetworkText(lower):
		return GRPCErrorNetwork
	case strings.Contains(lower, "internal_error"):
		return GRPCErrorInternal
	case strings.Contains(lower, "unavailable"):
		return GRPCErrorUnavailable
	case strings.Contains(lower, "deadline") || strings.Contains(lower, "timeout"):
		return GRPCErrorTimeout
	case strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "unauthorized"):
		return GRPCErrorAuth
	}
	return GRPCErrorUnknown
}

func isNetworkText(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rst_stream") || strings.Contains(s, "connection reset") ||
		strings.Contains(s, "connection refused") || strings.Contains(s, "no such host")
}

// FormatBridgeError formats a chat bridge error for the terminal.
func FormatBridgeError(err error) string {
	var b strings.Builder
	b.WriteString(pterm.NewStyle(pterm.FgRed, pterm.Bold).Sprint("Chat bridge request failed"))
	b.WriteString("\n\n")

	switch ParseGRPCError(err) {
	case GRPCErrorNetwork:
		b.WriteString("The connection to the chat bridge was interrupted or refused.\n")
		b.WriteString("Check that 'bichat serve' is running and reachable at the given address.\n")
	case GRPCErrorInternal:
		b.WriteString("The chat bridge hit an internal error while answering.\n")
	case GRPCErrorUnavailable:
		b.WriteString("The chat bridge is currently unavailable. It may be restarting.\n")
	case GRPCErrorTimeout:
		b.WriteString("The chat bridge did not answer in time. Try a simpler question.\n")
	case GRPCErrorAuth:
		b.WriteString("The chat bridge rejected the bearer token.\n")
		b.WriteString("Pass the server's token with --bridge-token or BICHAT_BRIDGE_TOKEN.\n")
	case GRPCErrorInvalid:
		b.WriteString("The request was rejected as invalid. A session id and a question are required.\n")
	default:
		b.WriteString("The request could not be completed.\n")
	}

	var st interface{ GRPCStatus() *status.Status }
	detail := err.Error()
	if errors.As(err, &st) {
		detail = st.GRPCStatus().Code().String() + ": " + st.GRPCStatus().Message()
	}
	b.WriteString("\n")
	b.WriteString(pterm.NewStyle(pterm.FgGray).Sprint("Technical details: " + Mask(detail)))
	return b.String()
}
