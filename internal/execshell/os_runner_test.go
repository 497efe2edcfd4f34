package execshell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOSCommandRunnerEnvironment(testInstance *testing.T) {
	runner := &OSCommandRunner{baseEnvironment: func() []string { return []string{"HOME=/home/student", "LC_ALL=de_DE.UTF-8"} }}

	testCases := []struct {
		name            string
		command         ShellCommand
		expectedPresent []string
		expectedAbsent  []string
	}{
		{
			name:            "git is non-interactive with a neutral locale",
			command:         ShellCommand{Name: CommandGit},
			expectedPresent: []string{"HOME=/home/student", "GIT_TERMINAL_PROMPT=0", "GIT_ASKPASS=true", "LC_ALL=C"},
		},
		{
			name:            "other tools inherit the environment unchanged",
			command:         ShellCommand{Name: CommandName("ls")},
			expectedPresent: []string{"HOME=/home/student", "LC_ALL=de_DE.UTF-8"},
			expectedAbsent:  []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"},
		},
		{
			name: "command variables come last",
			command: ShellCommand{
				Name:    CommandGit,
				Details: CommandDetails{EnvironmentVariables: map[string]string{"GIT_TRACE": "1"}},
			},
			expectedPresent: []string{"GIT_TRACE=1"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			environment := runner.environment(testCase.command)
			for _, assignment := range testCase.expectedPresent {
				require.Contains(testInstance, environment, assignment)
			}
			for _, assignment := range testCase.expectedAbsent {
				require.NotContains(testInstance, environment, assignment)
			}
		})
	}

	withVariables := runner.environment(ShellCommand{
		Name:    CommandGit,
		Details: CommandDetails{EnvironmentVariables: map[string]string{"LC_ALL": "en_US.UTF-8"}},
	})
	require.Equal(testInstance, "LC_ALL=en_US.UTF-8", withVariables[len(withVariables)-1])
}
