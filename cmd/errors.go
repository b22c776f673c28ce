package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/d4rkfella/vaulted/internal/config"
	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitGeneric    = 1
	ExitConfig     = 2
	ExitValidation = 3
	ExitRemote     = 4
)

type ValidationError struct {
	Sections map[string]*ValidationSection
	ExitCode int
}

type ValidationSection struct {
	Issues        []string
	Solutions     []string
	SettingAdvice []string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("🔴 Configuration Errors\n")
	sb.WriteString("══════════════════════\n\n")

	names := make([]string, 0, len(e.Sections))
	for name := range e.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, sectionName := range names {
		section := e.Sections[sectionName]
		if len(section.Issues) == 0 {
			continue
		}

		sb.WriteString(fmt.Sprintf("■ %s\n", sectionName))
		sb.WriteString(strings.Repeat("─", len(sectionName)+2) + "\n")
		sb.WriteString("  Issue(s):\n")
		for _, item := range section.Issues {
			sb.WriteString(fmt.Sprintf("    • %s\n", item))
		}

		if len(section.Solutions) > 0 {
			sb.WriteString("\n  How to fix:\n")
			for _, solution := range section.Solutions {
				sb.WriteString(fmt.Sprintf("    • %s\n", solution))
			}
		}

		if len(section.SettingAdvice) > 0 {
			sb.WriteString("\n  Ways to provide values:\n")
			for _, advice := range section.SettingAdvice {
				sb.WriteString(fmt.Sprintf("    • %s\n", advice))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("══════════════════════\n")
	return sb.String()
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	var verr *ValidationError
	switch {
	case err == nil:
		return ExitOK
	case errors.As(err, &verr):
		return verr.ExitCode
	case errors.Is(err, config.ErrInvalid), errors.Is(err, endpoint.ErrConfiguration):
		return ExitConfig
	case errors.Is(err, endpoint.ErrLookup),
		errors.Is(err, endpoint.ErrUnsupportedVerb),
		errors.Is(err, endpoint.ErrValidation):
		return ExitValidation
	case errors.Is(err, endpoint.ErrRemote):
		return ExitRemote
	default:
		return ExitGeneric
	}
}
