package platform

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// MaximumNameLength bounds team and repository names.
	MaximumNameLength = 100

	teamNameMemberSeparatorConstant    = "-"
	studentRepoNameTemplateConstant    = "%s-%s"
	teamNameFieldConstant              = "team name"
	repositoryNameFieldConstant        = "repository name"
	teamMembersFieldConstant           = "team members"
	permissionFieldConstant            = "permission"
	nameTooLongMessageTemplateConstant = "exceeds %d characters"
	nameRequiredMessageConstant        = "must not be empty"
	membersRequiredMessageConstant     = "at least one member is required when no name is given"
	unknownPermissionMessageConstant   = "must be push or pull"
)

// Permission is the access level a team has on its repositories.
type Permission string

// Supported permissions.
const (
	PermissionPush Permission = Permission("push")
	PermissionPull Permission = Permission("pull")
)

// ParsePermission converts textual input into a Permission.
func ParsePermission(value string) (Permission, error) {
	switch Permission(strings.ToLower(strings.TrimSpace(value))) {
	case PermissionPush:
		return PermissionPush, nil
	case PermissionPull:
		return PermissionPull, nil
	default:
		return "", ValidationError{Field: permissionFieldConstant, Value: value, Message: unknownPermissionMessageConstant}
	}
}

// TeamSpec is the desired state of one team.
type TeamSpec struct {
	Name       string
	Members    []string
	Permission Permission
}

// NewTeamSpec builds a TeamSpec. When name is blank it is derived from the sorted
// member usernames joined with "-". Names longer than MaximumNameLength are rejected.
func NewTeamSpec(name string, members []string, permission Permission) (TeamSpec, error) {
	normalizedMembers := normalizeMembers(members)
	teamName := strings.TrimSpace(name)
	if len(teamName) == 0 {
		if len(normalizedMembers) == 0 {
			return TeamSpec{}, ValidationError{Field: teamMembersFieldConstant, Message: membersRequiredMessageConstant}
		}
		sortedMembers := append([]string(nil), normalizedMembers...)
		sort.Strings(sortedMembers)
		teamName = strings.Join(sortedMembers, teamNameMemberSeparatorConstant)
	}
	if len(permission) == 0 {
		permission = PermissionPush
	}

	teamSpec := TeamSpec{Name: teamName, Members: normalizedMembers, Permission: permission}
	if validationError := teamSpec.Validate(); validationError != nil {
		return TeamSpec{}, validationError
	}
	return teamSpec, nil
}

// Validate reports the first constraint the spec violates.
func (spec TeamSpec) Validate() error {
	if nameError := validateName(teamNameFieldConstant, spec.Name); nameError != nil {
		return nameError
	}
	if spec.Permission != PermissionPush && spec.Permission != PermissionPull {
		return ValidationError{Field: permissionFieldConstant, Value: string(spec.Permission), Message: unknownPermissionMessageConstant}
	}
	return nil
}

// Team is a team as observed on the platform.
type Team struct {
	ID         int64
	Name       string
	Slug       string
	Members    []string
	Permission Permission
}

// HasMember reports whether username belongs to the team, ignoring case.
func (team Team) HasMember(username string) bool {
	for _, member := range team.Members {
		if strings.EqualFold(member, username) {
			return true
		}
	}
	return false
}

// RepoSpec is the desired state of one repository.
type RepoSpec struct {
	Name        string
	Description string
	Private     bool
	OwningTeam  *Team
}

// Validate reports whether the repository name is acceptable.
func (spec RepoSpec) Validate() error {
	return validateName(repositoryNameFieldConstant, spec.Name)
}

// Repo is a repository as observed on the platform.
type Repo struct {
	Name string
	URL  string
}

// RepoCreation reports the outcome of creating one RepoSpec. Created is false
// when the repository already existed and Repo describes the existing one.
type RepoCreation struct {
	Repo    Repo
	Created bool
}

// Issue is the content of an issue to open.
type Issue struct {
	Title string
	Body  string
}

// IssueState filters listed issues.
type IssueState string

// Issue states.
const (
	IssueStateOpen   IssueState = IssueState("open")
	IssueStateClosed IssueState = IssueState("closed")
	IssueStateAll    IssueState = IssueState("all")
)

// IssueRecord is an issue as observed on the platform.
type IssueRecord struct {
	Number int64
	Title  string
	State  IssueState
	URL    string
}

// StudentRepoName names the repository a team receives for a template.
func StudentRepoName(teamName string, templateName string) string {
	return fmt.Sprintf(studentRepoNameTemplateConstant, teamName, templateName)
}

func validateName(field string, name string) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ValidationError{Field: field, Value: name, Message: nameRequiredMessageConstant}
	}
	if len(name) > MaximumNameLength {
		return ValidationError{Field: field, Value: name, Message: fmt.Sprintf(nameTooLongMessageTemplateConstant, MaximumNameLength)}
	}
	return nil
}

func normalizeMembers(members []string) []string {
	seen := make(map[string]struct{}, len(members))
	normalized := make([]string, 0, len(members))
	for _, member := range members {
		trimmed := strings.TrimSpace(member)
		if len(trimmed) == 0 {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, duplicate := seen[key]; duplicate {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
