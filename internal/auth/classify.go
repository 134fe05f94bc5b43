package auth

import (
	"strings"

	"github.com/endolabs/endo-cli/internal/api"
)

// failureKind is the decision a login or registration failure maps to.
type failureKind int

const (
	failureGeneric failureKind = iota
	failureAlreadyRegistered
	failureBadCredentials
	failureUnconfirmed
)

// classifyAuthFailure maps a normalized error to a transition decision
// and a user-facing message. The matching is substring-based on the
// server's detail text; keeping it in one place means a structured error
// code can replace it without touching any call site.
func classifyAuthFailure(e *api.Error) (failureKind, string) {
	if e.Detail != "" {
		switch {
		case e.Detail == "Email already registered":
			return failureAlreadyRegistered, "An account with this email already exists. Please try logging in instead."
		case e.Detail == "Incorrect email or password":
			return failureBadCredentials, "Invalid email or password. Please check your credentials and try again."
		case strings.Contains(e.Detail, "Email not confirmed"):
			return failureUnconfirmed, ""
		default:
			return failureGeneric, e.Detail
		}
	}
	if e.Message != "" {
		return failureGeneric, e.Message
	}
	return failureGeneric, "An error occurred"
}

// classifyConfirmFailure maps a confirmation failure to its user-facing
// message.
func classifyConfirmFailure(e *api.Error) string {
	if e.Detail != "" {
		switch {
		case strings.Contains(e.Detail, "Invalid verification code"):
			return "Invalid verification code. Please check and try again."
		case strings.Contains(e.Detail, "expired"):
			return "Verification code has expired. Please request a new one."
		default:
			return e.Detail
		}
	}
	return "Confirmation failed"
}

// classifyResendFailure maps a resend failure to its user-facing message.
func classifyResendFailure(e *api.Error) string {
	if e.Detail != "" {
		return e.Detail
	}
	return "Failed to resend code"
}

// SanitizeCode strips anything that is not a digit and caps the result
// at six characters, matching what the code entry field accepts.
func SanitizeCode(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r < '0' || r > '9' {
			continue
		}
		b.WriteRune(r)
		if b.Len() == codeLength {
			break
		}
	}
	return b.String()
}
