package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatErrorKeepsFailuresOnOneLine(testInstance *testing.T) {
	firstFailure := errors.New(`team name "alice" is listed more than once`)
	secondFailure := errors.New(`team name "bob" exceeds 100 characters`)

	testCases := []struct {
		name     string
		failure  error
		expected string
	}{
		{name: "no error", failure: nil, expected: ""},
		{name: "single error", failure: firstFailure, expected: firstFailure.Error()},
		{
			name:     "joined errors",
			failure:  errors.Join(firstFailure, secondFailure),
			expected: firstFailure.Error() + "; " + secondFailure.Error(),
		},
		{
			name:     "wrapped joined errors",
			failure:  fmt.Errorf("setup: %w", errors.Join(firstFailure, nil, secondFailure)),
			expected: "setup: " + firstFailure.Error() + "; " + secondFailure.Error(),
		},
		{
			name:     "blank lines are dropped",
			failure:  errors.New("push failed\n\n  remote rejected\n"),
			expected: "push failed; remote rejected",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			formatted := FormatError(testCase.failure)
			require.Equal(testInstance, testCase.expected, formatted)
			require.NotContains(testInstance, formatted, "\n")
		})
	}
}

func TestFormatErrorPreservesJoinedErrorIdentity(testInstance *testing.T) {
	failingURLs := failingURLsError([]string{"https://github.com/course-2026/team-a-week-1"})
	commandError := joinCommandErrors(errors.New("update failed"), failingURLs)

	require.ErrorIs(testInstance, commandError, failingURLs)
	require.NotContains(testInstance, FormatError(commandError), "\n")
}
