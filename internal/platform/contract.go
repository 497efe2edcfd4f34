package platform

import (
	"context"
	"errors"
	"reflect"
	"regexp"
)

// Operation names a member of the capability contract.
type Operation string

// Contract operations.
const (
	OperationVerifySettings  Operation = Operation("VerifySettings")
	OperationGetTeams        Operation = Operation("GetTeams")
	OperationCreateTeam      Operation = Operation("CreateTeam")
	OperationAddTeamMembers  Operation = Operation("AddTeamMembers")
	OperationGetRepos        Operation = Operation("GetRepos")
	OperationCreateRepos     Operation = Operation("CreateRepos")
	OperationGetRepoURLs     Operation = Operation("GetRepoURLs")
	OperationInsertAuth      Operation = Operation("InsertAuth")
	OperationExtractRepoName Operation = Operation("ExtractRepoName")
	OperationOpenIssue       Operation = Operation("OpenIssue")
	OperationCloseIssues     Operation = Operation("CloseIssues")
	OperationListIssues      Operation = Operation("ListIssues")
)

// Backend is the capability contract of a code-hosting platform.
type Backend interface {
	// VerifySettings checks the credential and the configured organisations.
	VerifySettings(executionContext context.Context) error
	// GetTeams lists the teams of the organisation with their members.
	GetTeams(executionContext context.Context) ([]Team, error)
	// CreateTeam creates an empty team.
	CreateTeam(executionContext context.Context, spec TeamSpec) (Team, error)
	// AddTeamMembers adds members one by one, skipping users unknown to the
	// platform, and returns the team with its observed member list.
	AddTeamMembers(executionContext context.Context, team Team, members []string) (Team, error)
	// GetRepos returns the repositories among specs that exist.
	GetRepos(executionContext context.Context, specs []RepoSpec) ([]Repo, error)
	// CreateRepos creates each spec in order. Already existing repositories are
	// reported with Created false; any other failure stops the call.
	CreateRepos(executionContext context.Context, specs []RepoSpec) ([]RepoCreation, error)
	// GetRepoURLs constructs repository URLs without contacting the platform.
	GetRepoURLs(names []string, organization string, teams []Team) []string
	// InsertAuth embeds the credential into an https repository URL.
	InsertAuth(repositoryURL string) (string, error)
	// ExtractRepoName returns the repository name of a repository URL.
	ExtractRepoName(repositoryURL string) (string, error)
	// OpenIssue opens an issue in the repository at repositoryURL.
	OpenIssue(executionContext context.Context, repositoryURL string, issue Issue) (IssueRecord, error)
	// CloseIssues closes the open issues whose title matches titlePattern.
	CloseIssues(executionContext context.Context, repositoryURL string, titlePattern *regexp.Regexp) ([]IssueRecord, error)
	// ListIssues lists issues in a state whose title matches titlePattern.
	ListIssues(executionContext context.Context, repositoryURL string, state IssueState, titlePattern *regexp.Regexp) ([]IssueRecord, error)
}

var contractType = reflect.TypeOf((*Backend)(nil)).Elem()

// Operations returns every contract operation sorted by name.
func Operations() []Operation {
	operations := make([]Operation, 0, contractType.NumMethod())
	for methodIndex := 0; methodIndex < contractType.NumMethod(); methodIndex++ {
		operations = append(operations, Operation(contractType.Method(methodIndex).Name))
	}
	return operations
}

// VerifyContract checks that every exported method of backend is a contract
// operation declared with the contract's signature.
func VerifyContract(backend any) error {
	backendType := reflect.TypeOf(backend)
	if backendType == nil {
		return NonContractMethodError{BackendType: "<nil>"}
	}

	var violations []error
	for methodIndex := 0; methodIndex < backendType.NumMethod(); methodIndex++ {
		method := backendType.Method(methodIndex)
		contractMethod, declared := contractType.MethodByName(method.Name)
		if !declared {
			violations = append(violations, NonContractMethodError{BackendType: backendType.String(), Method: method.Name})
			continue
		}
		actualSignature := dropReceiver(method.Type)
		if actualSignature != contractMethod.Type {
			violations = append(violations, SignatureMismatchError{
				BackendType: backendType.String(),
				Method:      method.Name,
				Actual:      actualSignature.String(),
				Expected:    contractMethod.Type.String(),
			})
		}
	}
	return errors.Join(violations...)
}

func dropReceiver(methodType reflect.Type) reflect.Type {
	inputs := make([]reflect.Type, 0, methodType.NumIn()-1)
	for inputIndex := 1; inputIndex < methodType.NumIn(); inputIndex++ {
		inputs = append(inputs, methodType.In(inputIndex))
	}
	outputs := make([]reflect.Type, 0, methodType.NumOut())
	for outputIndex := 0; outputIndex < methodType.NumOut(); outputIndex++ {
		outputs = append(outputs, methodType.Out(outputIndex))
	}
	return reflect.FuncOf(inputs, outputs, methodType.IsVariadic())
}
