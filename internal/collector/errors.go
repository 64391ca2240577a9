package collector

import (
	"errors"

	"github.com/google/go-github/v55/github"

	"github.com/kurihiro0119/sponsor-access-sync/internal/domain"
	apperrors "github.com/kurihiro0119/sponsor-access-sync/internal/errors"
)

// providerDetails extracts the status code, message and documentation link
// GitHub attaches to a failed response
func providerDetails(resp *github.Response, err error) (status int, message, docURL string, cause error) {
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	cause = err

	var ghErr *github.ErrorResponse
	var rlErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError

	switch {
	case errors.As(err, &rlErr):
		message = rlErr.Message
		if rlErr.Response != nil {
			status = rlErr.Response.StatusCode
		}
		cause = apperrors.NewRateLimitedError("primary rate limit exceeded", err)
	case errors.As(err, &abuseErr):
		message = abuseErr.Message
		if abuseErr.Response != nil {
			status = abuseErr.Response.StatusCode
		}
		cause = apperrors.NewRateLimitedError("secondary rate limit exceeded", err)
	case errors.As(err, &ghErr):
		message = ghErr.Message
		docURL = ghErr.DocumentationURL
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
	}
	return status, message, docURL, cause
}

func transportError(op string, resp *github.Response, err error) error {
	status, message, docURL, cause := providerDetails(resp, err)
	return &apperrors.TransportError{
		Operation:        op,
		StatusCode:       status,
		Message:          message,
		DocumentationURL: docURL,
		Err:              cause,
	}
}

func mutationError(action domain.Action, target domain.GroupTarget, handle string, resp *github.Response, err error) error {
	status, message, docURL, cause := providerDetails(resp, err)
	return &apperrors.MutationError{
		Action:           string(action),
		Handle:           handle,
		Target:           target.String(),
		StatusCode:       status,
		Message:          message,
		DocumentationURL: docURL,
		Err:              cause,
	}
}
