package output

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/agentstation/crmsync/pkg/errors"
)

// Format selects how command results are written.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an --output value. The empty string is accepted
// and means "detect".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case "", FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", errors.NewValidationError("output", s, "must be one of: table, json, yaml")
}

// DetectFormat returns explicit when set. Otherwise a terminal on stdout
// gets a table and pipes get JSON, so scheduled runs emit parseable output.
func DetectFormat(explicit string) Format {
	if explicit != "" {
		return Format(strings.ToLower(explicit))
	}
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return FormatTable
	}
	return FormatJSON
}
