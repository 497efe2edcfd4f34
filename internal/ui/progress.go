package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/execshell"
)

const (
	progressLineTemplateConstant = "[%d/%d] %s\n"
	summaryTemplateConstant      = "%d git commands finished, %d failed\n"
)

// ProgressReporter implements execshell.CommandEventObserver by printing one
// credential-free line per finished git command.
type ProgressReporter struct {
	writer    io.Writer
	formatter execshell.CommandMessageFormatter
	mutex     sync.Mutex
	started   int
	finished  int
	failed    int
}

var _ execshell.CommandEventObserver = (*ProgressReporter)(nil)

// NewProgressReporter writes to writer and redacts secretTokens in addition to
// URL userinfo. A nil writer discards output.
func NewProgressReporter(writer io.Writer, secretTokens ...credentials.Token) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		writer:    writer,
		formatter: execshell.CommandMessageFormatter{SecretTokens: append([]credentials.Token(nil), secretTokens...)},
	}
}

// CommandStarted counts the command without printing.
func (reporter *ProgressReporter) CommandStarted(execshell.ShellCommand) {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	reporter.started++
}

// CommandCompleted prints the outcome of a command that produced an exit code.
func (reporter *ProgressReporter) CommandCompleted(command execshell.ShellCommand, result execshell.ExecutionResult) {
	if result.ExitCode == 0 {
		reporter.print(reporter.formatter.BuildSuccessMessage(command), false)
		return
	}
	reporter.print(reporter.formatter.BuildFailureMessage(command, result), true)
}

// CommandExecutionFailed prints a command that could not be run.
func (reporter *ProgressReporter) CommandExecutionFailed(command execshell.ShellCommand, failure error) {
	reporter.print(reporter.formatter.BuildExecutionFailureMessage(command, failure), true)
}

// Summarize prints the totals.
func (reporter *ProgressReporter) Summarize() {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	fmt.Fprintf(reporter.writer, summaryTemplateConstant, reporter.finished, reporter.failed)
}

func (reporter *ProgressReporter) print(message string, failed bool) {
	reporter.mutex.Lock()
	defer reporter.mutex.Unlock()
	reporter.finished++
	if failed {
		reporter.failed++
	}
	fmt.Fprintf(reporter.writer, progressLineTemplateConstant, reporter.finished, reporter.started, message)
}
