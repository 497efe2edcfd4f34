package cli

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/temirov/repofleet/internal/orchestration"
	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/roster"
)

const (
	setupCommandUseConstant           = "setup"
	setupCommandShortConstant         = "Create teams and repositories from templates"
	setupCommandLongConstant          = "setup creates the roster's teams, one repository per team and template, and pushes the template contents into every newly created repository."
	updateCommandUseConstant          = "update"
	updateCommandShortConstant        = "Push template updates to existing student repositories"
	updateCommandLongConstant         = "update pushes the current template contents to every student repository and can open an issue in the repositories that could not be updated."
	migrateCommandUseConstant         = "migrate"
	migrateCommandShortConstant       = "Copy repositories into the organization"
	migrateCommandLongConstant        = "migrate clones the source repositories and pushes them into same-named repositories in the configured organization."
	issuesCommandUseConstant          = "issues"
	issuesCommandShortConstant        = "Manage issues across student repositories"
	openIssueCommandUseConstant       = "open"
	openIssueCommandShortConstant     = "Open an issue in every student repository"
	closeIssueCommandUseConstant      = "close"
	closeIssueCommandShortConstant    = "Close matching issues in every student repository"
	verifyCommandUseConstant          = "verify"
	verifyCommandShortConstant        = "Check platform settings"
	templateFlagNameConstant          = "template"
	templateFlagUsageConstant         = "Template repository name or URL (repeatable)."
	rosterFlagNameConstant            = "roster"
	rosterFlagUsageConstant           = "Path to the team roster (text or YAML)."
	privateFlagNameConstant           = "private"
	privateFlagUsageConstant          = "Create repositories as private."
	sourceFlagNameConstant            = "source"
	sourceFlagUsageConstant           = "Source repository URL to migrate (repeatable)."
	issueTitleFlagNameConstant        = "issue-title"
	issueTitleFlagUsageConstant       = "Open an issue with this title in repositories that could not be updated."
	issueBodyFlagNameConstant         = "issue-body"
	issueBodyFlagUsageConstant        = "Body of the remediation issue."
	issueBodyFileFlagNameConstant     = "issue-body-file"
	issueBodyFileFlagUsageConstant    = "Read the remediation issue body from a file."
	titleFlagNameConstant             = "title"
	titleFlagUsageConstant            = "Issue title."
	bodyFlagNameConstant              = "body"
	bodyFlagUsageConstant             = "Issue body."
	bodyFileFlagNameConstant          = "body-file"
	bodyFileFlagUsageConstant         = "Read the issue body from a file."
	titlePatternFlagNameConstant      = "title-pattern"
	titlePatternFlagUsageConstant     = "Regular expression matched against open issue titles."
	rosterRequiredMessageConstant     = "a roster is required (--roster)"
	templatesRequiredMessageConstant  = "at least one template is required (--template)"
	sourcesRequiredMessageConstant    = "at least one source repository is required (--source)"
	bodyConflictTemplateConstant      = "--%s and --%s are mutually exclusive"
	bodyReadErrorTemplateConstant     = "unable to read issue body from %s: %w"
	rosterLoadErrorTemplateConstant   = "unable to load roster: %w"
	titlePatternErrorTemplateConstant = "invalid title pattern: %w"
	failingURLsErrorTemplateConstant  = "%d repositories could not be updated"
)

var (
	// ErrRosterRequired indicates a command invoked without --roster.
	ErrRosterRequired    = errors.New(rosterRequiredMessageConstant)
	// ErrTemplatesRequired indicates a command invoked without --template.
	ErrTemplatesRequired = errors.New(templatesRequiredMessageConstant)
	// ErrSourcesRequired indicates migrate invoked without --source.
	ErrSourcesRequired   = errors.New(sourcesRequiredMessageConstant)
)

type issueBodyFlags struct {
	body     string
	bodyFile string
}

func (application *Application) buildSetupCommand() *cobra.Command {
	var templates []string
	var rosterPath string
	private := true

	command := &cobra.Command{
		Use:   setupCommandUseConstant,
		Short: setupCommandShortConstant,
		Long:  setupCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			teams, rosterError := application.loadRoster(rosterPath)
			if rosterError != nil {
				return rosterError
			}
			if len(templates) == 0 {
				return ErrTemplatesRequired
			}
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}

			report, setupError := runtime.service.Setup(command.Context(), orchestration.SetupOptions{
				TemplateURLs: runtime.templateURLs(templates, application.configuration.Platform.TemplateOrganization),
				Teams:        teams,
				Private:      private,
			})
			writeSetupReport(command.OutOrStdout(), report)
			return joinCommandErrors(setupError, failingURLsError(report.FailingURLs), runtime.finish())
		},
	}
	command.Flags().StringSliceVar(&templates, templateFlagNameConstant, nil, templateFlagUsageConstant)
	command.Flags().StringVar(&rosterPath, rosterFlagNameConstant, "", rosterFlagUsageConstant)
	command.Flags().BoolVar(&private, privateFlagNameConstant, true, privateFlagUsageConstant)
	return command
}

func (application *Application) buildUpdateCommand() *cobra.Command {
	var templates []string
	var rosterPath string
	var issueTitle string
	var bodyFlags issueBodyFlags

	command := &cobra.Command{
		Use:   updateCommandUseConstant,
		Short: updateCommandShortConstant,
		Long:  updateCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			teams, rosterError := application.loadRoster(rosterPath)
			if rosterError != nil {
				return rosterError
			}
			if len(templates) == 0 {
				return ErrTemplatesRequired
			}
			var remediationIssue *platform.Issue
			if command.Flags().Changed(issueTitleFlagNameConstant) {
				body, bodyError := application.readIssueBody(bodyFlags, issueBodyFlagNameConstant, issueBodyFileFlagNameConstant)
				if bodyError != nil {
					return bodyError
				}
				remediationIssue = &platform.Issue{Title: issueTitle, Body: body}
			}
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}

			report, updateError := runtime.service.Update(command.Context(), orchestration.UpdateOptions{
				TemplateURLs: runtime.templateURLs(templates, application.configuration.Platform.TemplateOrganization),
				Teams:        teams,
				Issue:        remediationIssue,
			})
			writeUpdateReport(command.OutOrStdout(), report)
			return joinCommandErrors(updateError, failingURLsError(report.FailingURLs), runtime.finish())
		},
	}
	command.Flags().StringSliceVar(&templates, templateFlagNameConstant, nil, templateFlagUsageConstant)
	command.Flags().StringVar(&rosterPath, rosterFlagNameConstant, "", rosterFlagUsageConstant)
	command.Flags().StringVar(&issueTitle, issueTitleFlagNameConstant, "", issueTitleFlagUsageConstant)
	command.Flags().StringVar(&bodyFlags.body, issueBodyFlagNameConstant, "", issueBodyFlagUsageConstant)
	command.Flags().StringVar(&bodyFlags.bodyFile, issueBodyFileFlagNameConstant, "", issueBodyFileFlagUsageConstant)
	return command
}

func (application *Application) buildMigrateCommand() *cobra.Command {
	var sources []string
	private := true

	command := &cobra.Command{
		Use:   migrateCommandUseConstant,
		Short: migrateCommandShortConstant,
		Long:  migrateCommandLongConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			if len(sources) == 0 {
				return ErrSourcesRequired
			}
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}

			report, migrateError := runtime.service.Migrate(command.Context(), orchestration.MigrateOptions{
				SourceURLs: sources,
				Private:    private,
			})
			writeMigrateReport(command.OutOrStdout(), report)
			return joinCommandErrors(migrateError, failingURLsError(report.FailingURLs), runtime.finish())
		},
	}
	command.Flags().StringSliceVar(&sources, sourceFlagNameConstant, nil, sourceFlagUsageConstant)
	command.Flags().BoolVar(&private, privateFlagNameConstant, true, privateFlagUsageConstant)
	return command
}

func (application *Application) buildIssuesCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   issuesCommandUseConstant,
		Short: issuesCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}
	command.AddCommand(application.buildOpenIssueCommand(), application.buildCloseIssueCommand())
	return command
}

func (application *Application) buildOpenIssueCommand() *cobra.Command {
	var templates []string
	var rosterPath string
	var title string
	var bodyFlags issueBodyFlags

	command := &cobra.Command{
		Use:   openIssueCommandUseConstant,
		Short: openIssueCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			teams, rosterError := application.loadRoster(rosterPath)
			if rosterError != nil {
				return rosterError
			}
			body, bodyError := application.readIssueBody(bodyFlags, bodyFlagNameConstant, bodyFileFlagNameConstant)
			if bodyError != nil {
				return bodyError
			}
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}

			report, issueError := runtime.service.OpenIssues(command.Context(), orchestration.OpenIssueOptions{
				Targets: orchestration.IssueTargets{TemplateNames: templates, Teams: teams},
				Issue:   platform.Issue{Title: title, Body: body},
			})
			writeIssueReport(command.OutOrStdout(), report)
			return joinCommandErrors(issueError, runtime.finish())
		},
	}
	command.Flags().StringSliceVar(&templates, templateFlagNameConstant, nil, templateFlagUsageConstant)
	command.Flags().StringVar(&rosterPath, rosterFlagNameConstant, "", rosterFlagUsageConstant)
	command.Flags().StringVar(&title, titleFlagNameConstant, "", titleFlagUsageConstant)
	command.Flags().StringVar(&bodyFlags.body, bodyFlagNameConstant, "", bodyFlagUsageConstant)
	command.Flags().StringVar(&bodyFlags.bodyFile, bodyFileFlagNameConstant, "", bodyFileFlagUsageConstant)
	return command
}

func (application *Application) buildCloseIssueCommand() *cobra.Command {
	var templates []string
	var rosterPath string
	var titlePattern string

	command := &cobra.Command{
		Use:   closeIssueCommandUseConstant,
		Short: closeIssueCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			teams, rosterError := application.loadRoster(rosterPath)
			if rosterError != nil {
				return rosterError
			}
			var compiledPattern *regexp.Regexp
			if len(titlePattern) > 0 {
				pattern, compileError := regexp.Compile(titlePattern)
				if compileError != nil {
					return fmt.Errorf(titlePatternErrorTemplateConstant, compileError)
				}
				compiledPattern = pattern
			}
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}

			report, issueError := runtime.service.CloseIssues(command.Context(), orchestration.CloseIssueOptions{
				Targets:      orchestration.IssueTargets{TemplateNames: templates, Teams: teams},
				TitlePattern: compiledPattern,
			})
			writeIssueReport(command.OutOrStdout(), report)
			return joinCommandErrors(issueError, runtime.finish())
		},
	}
	command.Flags().StringSliceVar(&templates, templateFlagNameConstant, nil, templateFlagUsageConstant)
	command.Flags().StringVar(&rosterPath, rosterFlagNameConstant, "", rosterFlagUsageConstant)
	command.Flags().StringVar(&titlePattern, titlePatternFlagNameConstant, "", titlePatternFlagUsageConstant)
	return command
}

func (application *Application) buildVerifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   verifyCommandUseConstant,
		Short: verifyCommandShortConstant,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			runtime, runtimeError := application.newRuntime(command)
			if runtimeError != nil {
				return runtimeError
			}
			return joinCommandErrors(runtime.service.Verify(command.Context()), runtime.finish())
		},
	}
}

func (application *Application) loadRoster(rosterPath string) ([]platform.TeamSpec, error) {
	trimmedPath := strings.TrimSpace(rosterPath)
	if len(trimmedPath) == 0 {
		return nil, ErrRosterRequired
	}
	teams, loadError := roster.LoadFile(application.homeExpander.Expand(trimmedPath))
	if loadError != nil {
		return nil, fmt.Errorf(rosterLoadErrorTemplateConstant, loadError)
	}
	return teams, nil
}

func (application *Application) readIssueBody(flags issueBodyFlags, bodyFlagName string, bodyFileFlagName string) (string, error) {
	if len(flags.bodyFile) == 0 {
		return flags.body, nil
	}
	if len(flags.body) > 0 {
		return "", fmt.Errorf(bodyConflictTemplateConstant, bodyFlagName, bodyFileFlagName)
	}
	bodyPath := application.homeExpander.Expand(flags.bodyFile)
	contentBytes, readError := os.ReadFile(bodyPath)
	if readError != nil {
		return "", fmt.Errorf(bodyReadErrorTemplateConstant, bodyPath, readError)
	}
	return string(contentBytes), nil
}

func failingURLsError(failingURLs []string) error {
	if len(failingURLs) == 0 {
		return nil
	}
	return fmt.Errorf(failingURLsErrorTemplateConstant, len(failingURLs))
}

func joinCommandErrors(commandErrors ...error) error {
	return errors.Join(commandErrors...)
}
