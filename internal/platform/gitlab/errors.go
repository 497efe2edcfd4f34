package gitlab

import (
	"errors"
	"net/http"
	"strings"

	gitlabapi "gitlab.com/gitlab-org/api/client-go"

	"github.com/temirov/repofleet/internal/platform"
)

const (
	alreadyTakenMarkerConstant = "has already been taken"
	memberExistsMarkerConstant = "member already exists"
)

// translateError maps client-go failures onto the platform taxonomy.
func translateError(operation platform.Operation, remoteError error) error {
	if remoteError == nil {
		return nil
	}
	var errorResponse *gitlabapi.ErrorResponse
	if errors.As(remoteError, &errorResponse) {
		return platform.TranslateStatus(operation, statusCode(errorResponse.Response), errorResponse.Message, remoteError)
	}
	return platform.NewPlatformError(platform.ErrorKindUnexpected, operation, 0, remoteError.Error(), remoteError)
}

// isAlreadyTaken reports GitLab's validation failure for a taken project path or name.
func isAlreadyTaken(remoteError error) bool {
	var errorResponse *gitlabapi.ErrorResponse
	if !errors.As(remoteError, &errorResponse) {
		return false
	}
	return statusCode(errorResponse.Response) == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(errorResponse.Message), alreadyTakenMarkerConstant)
}

func isMemberAlreadyPresent(remoteError error) bool {
	var errorResponse *gitlabapi.ErrorResponse
	if !errors.As(remoteError, &errorResponse) {
		return false
	}
	return statusCode(errorResponse.Response) == http.StatusConflict ||
		strings.Contains(strings.ToLower(errorResponse.Message), memberExistsMarkerConstant)
}

func statusCode(response *http.Response) int {
	if response == nil {
		return 0
	}
	return response.StatusCode
}
