package execshell

// CommandEventObserver is told about every git process a ShellExecutor runs.
// Events arrive from concurrent clone and push workers, so implementations
// must be safe for concurrent use.
type CommandEventObserver interface {
	CommandStarted(command ShellCommand)
	// CommandCompleted fires once the process exited, whatever its exit code.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed fires when the process could not be run at all.
	CommandExecutionFailed(command ShellCommand, failure error)
}

// discardingObserver is installed when no observer is configured.
type discardingObserver struct{}

func (discardingObserver) CommandStarted(ShellCommand)                    {}
func (discardingObserver) CommandCompleted(ShellCommand, ExecutionResult) {}
func (discardingObserver) CommandExecutionFailed(ShellCommand, error)     {}
