// Package roster reads team definitions from plain-text or YAML files.
//
// The text format holds one team per line: whitespace-separated usernames,
// optionally preceded by "name:". Blank lines and lines starting with '#' are
// ignored. Unnamed teams are named after their sorted members.
//
// The YAML format is a sequence of teams, optionally nested under "teams":
//
//	- name: team-a
//	  members: [alice, bob]
//	  permission: push
package roster

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/temirov/repofleet/internal/platform"
)

const (
	rosterPathRequiredMessageConstant = "roster path must be provided"
	rosterLoadErrorTemplateConstant   = "failed to load roster %s: %w"
	rosterParseErrorTemplateConstant  = "failed to parse roster: %w"
	lineErrorTemplateConstant         = "line %d: %v"
	entryErrorTemplateConstant        = "team %d: %v"
	duplicateTeamTemplateConstant     = "team %q is defined more than once"
	emptyRosterMessageConstant        = "roster defines no teams"
	commentPrefixConstant             = "#"
	teamNameDelimiterConstant         = ":"
	yamlExtensionConstant             = ".yaml"
	ymlExtensionConstant              = ".yml"
)

// Format identifies a roster file format.
type Format string

// Supported roster formats.
const (
	FormatText Format = Format("text")
	FormatYAML Format = Format("yaml")
)

// ErrEmptyRoster indicates a roster without any team.
var ErrEmptyRoster = errors.New(emptyRosterMessageConstant)

// LineError reports a rejected line of a text roster.
type LineError struct {
	Line  int
	Cause error
}

// Error describes the rejected line.
func (lineError LineError) Error() string {
	return fmt.Sprintf(lineErrorTemplateConstant, lineError.Line, lineError.Cause)
}

// Unwrap exposes the validation failure.
func (lineError LineError) Unwrap() error {
	return lineError.Cause
}

type teamDocument struct {
	Name       string   `yaml:"name"`
	Members    []string `yaml:"members"`
	Permission string   `yaml:"permission"`
}

// DetectFormat chooses the format from the file extension.
func DetectFormat(filePath string) Format {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case yamlExtensionConstant, ymlExtensionConstant:
		return FormatYAML
	default:
		return FormatText
	}
}

// LoadFile reads the roster at filePath in the format its extension implies.
func LoadFile(filePath string) ([]platform.TeamSpec, error) {
	trimmedPath := strings.TrimSpace(filePath)
	if len(trimmedPath) == 0 {
		return nil, errors.New(rosterPathRequiredMessageConstant)
	}
	contentBytes, readError := os.ReadFile(trimmedPath)
	if readError != nil {
		return nil, fmt.Errorf(rosterLoadErrorTemplateConstant, trimmedPath, readError)
	}
	if DetectFormat(trimmedPath) == FormatYAML {
		return ParseYAML(contentBytes)
	}
	return ParseText(bytes.NewReader(contentBytes))
}

// ParseText reads the line-oriented roster format.
func ParseText(reader io.Reader) ([]platform.TeamSpec, error) {
	scanner := bufio.NewScanner(reader)
	teams := make([]platform.TeamSpec, 0)
	seen := make(map[string]struct{})
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || strings.HasPrefix(line, commentPrefixConstant) {
			continue
		}

		name := ""
		membersText := line
		if delimiterIndex := strings.Index(line, teamNameDelimiterConstant); delimiterIndex >= 0 {
			name = line[:delimiterIndex]
			membersText = line[delimiterIndex+len(teamNameDelimiterConstant):]
		}
		team, teamError := platform.NewTeamSpec(name, strings.Fields(membersText), platform.PermissionPush)
		if teamError != nil {
			return nil, LineError{Line: lineNumber, Cause: teamError}
		}
		if duplicateError := rememberTeam(seen, team); duplicateError != nil {
			return nil, LineError{Line: lineNumber, Cause: duplicateError}
		}
		teams = append(teams, team)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, fmt.Errorf(rosterParseErrorTemplateConstant, scanError)
	}
	if len(teams) == 0 {
		return nil, ErrEmptyRoster
	}
	return teams, nil
}

// ParseYAML reads the YAML roster format.
func ParseYAML(contentBytes []byte) ([]platform.TeamSpec, error) {
	var documents []teamDocument
	if unmarshalError := yaml.Unmarshal(contentBytes, &documents); unmarshalError != nil {
		var wrapper struct {
			Teams []teamDocument `yaml:"teams"`
		}
		if nestedError := yaml.Unmarshal(contentBytes, &wrapper); nestedError != nil {
			return nil, fmt.Errorf(rosterParseErrorTemplateConstant, unmarshalError)
		}
		documents = wrapper.Teams
	}

	teams := make([]platform.TeamSpec, 0, len(documents))
	seen := make(map[string]struct{}, len(documents))
	for documentIndex, document := range documents {
		position := documentIndex + 1
		permission := platform.PermissionPush
		if len(strings.TrimSpace(document.Permission)) > 0 {
			parsedPermission, permissionError := platform.ParsePermission(document.Permission)
			if permissionError != nil {
				return nil, fmt.Errorf(entryErrorTemplateConstant, position, permissionError)
			}
			permission = parsedPermission
		}
		team, teamError := platform.NewTeamSpec(document.Name, document.Members, permission)
		if teamError != nil {
			return nil, fmt.Errorf(entryErrorTemplateConstant, position, teamError)
		}
		if duplicateError := rememberTeam(seen, team); duplicateError != nil {
			return nil, fmt.Errorf(entryErrorTemplateConstant, position, duplicateError)
		}
		teams = append(teams, team)
	}
	if len(teams) == 0 {
		return nil, ErrEmptyRoster
	}
	return teams, nil
}

func rememberTeam(seen map[string]struct{}, team platform.TeamSpec) error {
	key := strings.ToLower(team.Name)
	if _, duplicate := seen[key]; duplicate {
		return fmt.Errorf(duplicateTeamTemplateConstant, team.Name)
	}
	seen[key] = struct{}{}
	return nil
}
