package utils_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/utils"
)

const (
	testDebugMessageConstant = "batch planned"
	testInfoMessageConstant  = "run started"
	testRunIdentifier        = "run-0042"
)

// captureStandardError runs action with os.Stderr redirected and returns what was written.
func captureStandardError(testInstance *testing.T, action func()) string {
	testInstance.Helper()
	pipeReader, pipeWriter, pipeError := os.Pipe()
	require.NoError(testInstance, pipeError)

	originalStderr := os.Stderr
	os.Stderr = pipeWriter
	defer func() { os.Stderr = originalStderr }()

	action()

	require.NoError(testInstance, pipeWriter.Close())
	capturedOutput, readError := io.ReadAll(pipeReader)
	require.NoError(testInstance, readError)
	require.NoError(testInstance, pipeReader.Close())
	return string(bytes.TrimSpace(capturedOutput))
}

func syncLogger(testInstance *testing.T, logger *zap.Logger) {
	testInstance.Helper()
	if syncError := logger.Sync(); syncError != nil {
		require.True(testInstance, errors.Is(syncError, syscall.ENOTSUP) || errors.Is(syncError, syscall.EINVAL))
	}
}

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name             string
		level            utils.LogLevel
		format           utils.LogFormat
		expectStructured bool
		expectDebug      bool
		expectedFragment string
	}{
		{
			name:             "structured debug",
			level:            utils.LogLevelDebug,
			format:           utils.LogFormatStructured,
			expectStructured: true,
			expectDebug:      true,
			expectedFragment: `"run_id":"` + testRunIdentifier + `"`,
		},
		{
			name:             "structured info drops debug",
			level:            utils.LogLevelInfo,
			format:           utils.LogFormatStructured,
			expectStructured: true,
			expectedFragment: `"level":"info"`,
		},
		{
			name:             "console with capitalized level",
			level:            utils.LogLevelInfo,
			format:           utils.LogFormatConsole,
			expectedFragment: "INFO",
		},
		{
			name:             "mixed case values",
			level:            utils.LogLevel(" DEBUG "),
			format:           utils.LogFormat("Console"),
			expectDebug:      true,
			expectedFragment: "DEBUG",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			output := captureStandardError(testInstance, func() {
				logger, creationError := utils.NewLoggerFactory().CreateLogger(testCase.level, testCase.format)
				require.NoError(testInstance, creationError)
				logger.Debug(testDebugMessageConstant)
				logger.Info(testInfoMessageConstant, zap.String("run_id", testRunIdentifier))
				syncLogger(testInstance, logger)
			})

			require.Contains(testInstance, output, testInfoMessageConstant)
			require.Contains(testInstance, output, testCase.expectedFragment)
			if testCase.expectDebug {
				require.Contains(testInstance, output, testDebugMessageConstant)
			} else {
				require.NotContains(testInstance, output, testDebugMessageConstant)
			}

			lines := bytes.Split([]byte(output), []byte("\n"))
			for _, line := range lines {
				require.Equal(testInstance, testCase.expectStructured, json.Valid(line))
			}
		})
	}
}

func TestLoggerFactoryRejectsUnknownSettings(testInstance *testing.T) {
	testCases := []struct {
		name   string
		level  utils.LogLevel
		format utils.LogFormat
	}{
		{name: "unknown level", level: utils.LogLevel("verbose"), format: utils.LogFormatStructured},
		{name: "unknown format", level: utils.LogLevelInfo, format: utils.LogFormat("xml")},
		{name: "empty level", level: utils.LogLevel(""), format: utils.LogFormatConsole},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			logger, creationError := utils.NewLoggerFactory().CreateLogger(testCase.level, testCase.format)
			require.Error(testInstance, creationError)
			require.Nil(testInstance, logger)
		})
	}
}
