package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// AuthError indicates authentication/authorization failures (401/403).
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.APIError.Error())
}

// RateLimitError indicates 429 responses and may include a Retry-After.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: wait about %ds before retrying: %s", int(e.RetryAfter.Seconds()), e.APIError.Error())
	}
	return fmt.Sprintf("rate limited: %s", e.APIError.Error())
}

// ModelNotFoundError indicates the requested model is not available.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model not found: %s", e.APIError.Error())
}

// BadRequestError indicates a 400 validation problem.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string { return fmt.Sprintf("bad request: %s", e.APIError.Error()) }

// QuotaExceededError indicates billing/quota problems.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s", e.APIError.Error())
}

// ServerError indicates 5xx errors from the provider.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string { return fmt.Sprintf("provider error: %s", e.APIError.Error()) }

// UnreachableError indicates the endpoint could not be dialed.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "unreachable"
	}
	if e.Host != "" {
		return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
	}
	return fmt.Sprintf("endpoint unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Explain turns an insight failure into a one-line message for the user.
// The analysis panels keep working whatever is returned here.
func Explain(err error) string {
	var (
		auth     *AuthError
		rate     *RateLimitError
		notFound *ModelNotFoundError
		quota    *QuotaExceededError
		bad      *BadRequestError
		server   *ServerError
		down     *UnreachableError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingAPIKey):
		return "Enter an API key to request an AI analysis."
	case errors.As(err, &auth):
		return "The API key was rejected. Check the key and try again."
	case errors.As(err, &rate):
		if rate.RetryAfter > 0 {
			return fmt.Sprintf("The provider is rate limiting requests. Try again in about %ds.", int(rate.RetryAfter.Seconds()))
		}
		return "The provider is rate limiting requests. Try again shortly."
	case errors.As(err, &quota):
		return "The account has run out of quota or credits."
	case errors.As(err, &notFound):
		return "The configured model is not available from this provider."
	case errors.As(err, &bad):
		return "The provider rejected the request: " + bad.Message
	case errors.As(err, &server):
		return "The provider returned a server error. Try again later."
	case errors.As(err, &down):
		return "The AI endpoint could not be reached."
	case errors.Is(err, context.DeadlineExceeded):
		return "The AI request timed out."
	}
	return "AI analysis failed: " + err.Error()
}
