package dnaerr

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
	"syscall"
)

// messageRule maps message substrings onto a classification. Rules are a
// best-effort fallback for errors raised outside this module's control.
type messageRule struct {
	patterns   []string
	code       string
	category   Category
	severity   Severity
	suggestion string
}

var messageRules = []messageRule{
	{
		patterns:   []string{"no space left", "enospc", "disk full"},
		code:       CodeDiskFull,
		category:   CategoryFilesystem,
		severity:   SeverityCritical,
		suggestion: "Free up disk space and try again",
	},
	{
		patterns:   []string{"permission denied", "eacces", "eperm", "access is denied"},
		code:       CodePermissionDenied,
		category:   CategoryFilesystem,
		severity:   SeverityHigh,
		suggestion: "Check that you have write access to the target location",
	},
	{
		patterns:   []string{"no such file", "not found", "enoent", "cannot find"},
		code:       CodeFileNotFound,
		category:   CategoryFilesystem,
		severity:   SeverityMedium,
		suggestion: "Verify the path exists and is spelled correctly",
	},
	{
		patterns: []string{
			"connection refused", "econnrefused", "enotfound", "no such host",
			"network is unreachable", "connection reset", "etimedout", "i/o timeout",
			"tls handshake",
		},
		code:       CodeNetworkError,
		category:   CategoryNetwork,
		severity:   SeverityMedium,
		suggestion: "Check your network connection or registry proxy settings",
	},
	{
		patterns: []string{
			"npm err", "npm error", "yarn", "pnpm", "eresolve", "peer dep",
			"package.json", "lockfile", "dependency",
		},
		code:       CodeDependencyError,
		category:   CategoryDependency,
		severity:   SeverityMedium,
		suggestion: "Run the package manager install manually inside the project",
	},
}

// From normalizes any error into an *Error. Structured errors are returned
// unchanged; well-known Go error values come next; message patterns are the
// last resort, and anything unmatched becomes a generic validation error.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return System(CodeTimeout, "operation timed out").
			WithCause(err).
			WithSuggestion("Increase --timeout or check for a hung subprocess")
	case errors.Is(err, context.Canceled):
		return System(CodeCanceled, "operation canceled").WithCause(err)
	case errors.Is(err, syscall.ENOSPC):
		return Filesystem(CodeDiskFull, "no space left on device").
			WithSeverity(SeverityCritical).
			WithCause(err).
			WithSuggestion("Free up disk space and try again")
	case errors.Is(err, fs.ErrPermission):
		return Filesystem(CodePermissionDenied, "permission denied").
			WithCause(err).
			WithSuggestion("Check that you have write access to the target location")
	case errors.Is(err, fs.ErrNotExist):
		return Filesystem(CodeFileNotFound, "file or directory not found").
			WithSeverity(SeverityMedium).
			WithCause(err).
			WithSuggestion("Verify the path exists and is spelled correctly")
	case errors.Is(err, fs.ErrExist):
		return Filesystem(CodeFileExists, "file or directory already exists").
			WithSeverity(SeverityMedium).
			WithCause(err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, p := range rule.patterns {
			if strings.Contains(msg, p) {
				return New(rule.code, rule.category, rule.severity, err.Error()).
					WithSuggestion(rule.suggestion).
					WithCause(err)
			}
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return System(CodeCommandFailed, "command exited with a non-zero status").
			WithCause(err).
			WithDetail("exit_code", exitErr.ExitCode())
	}

	return Validation(CodeValidationError, err.Error()).WithCause(err)
}
