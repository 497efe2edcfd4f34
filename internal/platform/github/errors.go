package github

import (
	"errors"
	"net/http"
	"strings"

	githubapi "github.com/google/go-github/v68/github"

	"github.com/temirov/repofleet/internal/platform"
)

// translateError maps go-github failures onto the platform taxonomy.
func translateError(operation platform.Operation, remoteError error) error {
	if remoteError == nil {
		return nil
	}

	var rateLimitError *githubapi.RateLimitError
	if errors.As(remoteError, &rateLimitError) {
		return platform.NewPlatformError(platform.ErrorKindServiceUnavailable, operation, statusCode(rateLimitError.Response), rateLimitError.Message, remoteError)
	}
	var abuseRateLimitError *githubapi.AbuseRateLimitError
	if errors.As(remoteError, &abuseRateLimitError) {
		return platform.NewPlatformError(platform.ErrorKindServiceUnavailable, operation, statusCode(abuseRateLimitError.Response), abuseRateLimitError.Message, remoteError)
	}
	var errorResponse *githubapi.ErrorResponse
	if errors.As(remoteError, &errorResponse) {
		return platform.TranslateStatus(operation, statusCode(errorResponse.Response), errorResponse.Message, remoteError)
	}
	return platform.NewPlatformError(platform.ErrorKindUnexpected, operation, 0, remoteError.Error(), remoteError)
}

// isAlreadyExists reports GitHub's validation failure for a taken repository name.
func isAlreadyExists(remoteError error) bool {
	var errorResponse *githubapi.ErrorResponse
	if !errors.As(remoteError, &errorResponse) {
		return false
	}
	if statusCode(errorResponse.Response) != http.StatusUnprocessableEntity {
		return false
	}
	if strings.Contains(strings.ToLower(errorResponse.Message), alreadyExistsMarkerConstant) {
		return true
	}
	for _, validationError := range errorResponse.Errors {
		if strings.Contains(strings.ToLower(validationError.Message), alreadyExistsMarkerConstant) {
			return true
		}
	}
	return false
}

func statusCode(response *http.Response) int {
	if response == nil {
		return 0
	}
	return response.StatusCode
}
