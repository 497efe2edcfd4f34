package platform_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/repofleet/internal/platform"
)

func TestTranslateStatus(testInstance *testing.T) {
	testCases := []struct {
		name             string
		statusCode       int
		expectedKind     platform.ErrorKind
		expectedSentinel error
	}{
		{name: "not_found", statusCode: http.StatusNotFound, expectedKind: platform.ErrorKindNotFound, expectedSentinel: platform.ErrNotFound},
		{name: "unauthorized", statusCode: http.StatusUnauthorized, expectedKind: platform.ErrorKindBadCredentials, expectedSentinel: platform.ErrBadCredentials},
		{name: "too_many_requests", statusCode: http.StatusTooManyRequests, expectedKind: platform.ErrorKindServiceUnavailable, expectedSentinel: platform.ErrServiceUnavailable},
		{name: "bad_gateway", statusCode: http.StatusBadGateway, expectedKind: platform.ErrorKindServiceUnavailable, expectedSentinel: platform.ErrServiceUnavailable},
		{name: "service_unavailable", statusCode: http.StatusServiceUnavailable, expectedKind: platform.ErrorKindServiceUnavailable, expectedSentinel: platform.ErrServiceUnavailable},
		{name: "unprocessable", statusCode: http.StatusUnprocessableEntity, expectedKind: platform.ErrorKindGeneric, expectedSentinel: platform.ErrGenericPlatform},
		{name: "forbidden", statusCode: http.StatusForbidden, expectedKind: platform.ErrorKindGeneric, expectedSentinel: platform.ErrGenericPlatform},
		{name: "internal_server_error", statusCode: http.StatusInternalServerError, expectedKind: platform.ErrorKindGeneric, expectedSentinel: platform.ErrGenericPlatform},
		{name: "no_response", statusCode: 0, expectedKind: platform.ErrorKindUnexpected, expectedSentinel: platform.ErrUnexpectedPlatform},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			cause := errors.New("backend failure")
			platformError := platform.TranslateStatus(platform.OperationCreateTeam, testCase.statusCode, "details", cause)
			require.Equal(testInstance, testCase.expectedKind, platformError.Kind)
			require.ErrorIs(testInstance, platformError, testCase.expectedSentinel)
			require.ErrorIs(testInstance, platformError, cause)
			for _, otherSentinel := range []error{platform.ErrNotFound, platform.ErrBadCredentials, platform.ErrServiceUnavailable, platform.ErrGenericPlatform, platform.ErrUnexpectedPlatform} {
				if otherSentinel == testCase.expectedSentinel {
					continue
				}
				require.NotErrorIs(testInstance, platformError, otherSentinel)
			}
		})
	}
}

func TestPlatformErrorMessageIsSanitized(testInstance *testing.T) {
	platformError := platform.TranslateStatus(platform.OperationGetRepos, http.StatusNotFound, "https://ghp_secret@github.com/org/repo not found", nil)
	require.NotContains(testInstance, platformError.Error(), "ghp_secret")
	require.Contains(testInstance, platformError.Error(), "GetRepos")
	require.Contains(testInstance, platformError.Error(), "status 404")
}
