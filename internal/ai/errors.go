package ai

import (
	"errors"
	"fmt"
	"time"
)

// AuthError means the chat completion was refused because the API key is
// missing, wrong, or lacks access to the model.
type AuthError struct{ *APIError }

func (e *AuthError) Error() string {
	return fmt.Sprintf("chat completion rejected, check api_key: %s", e.APIError.Error())
}

// RateLimitError is a 429 that is not a quota problem. RetryAfter carries the
// provider's requested pause when it sent one.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("chat completion throttled (retry in %s): %s", e.RetryAfter.Round(time.Second), e.APIError.Error())
	}
	return fmt.Sprintf("chat completion throttled: %s", e.APIError.Error())
}

// ModelNotFoundError means the configured model name is unknown to the provider.
type ModelNotFoundError struct{ *APIError }

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model unknown to provider, check model: %s", e.APIError.Error())
}

// BadRequestError is a 400 on a completion request. Oversized data previews
// in the prompt are the usual cause.
type BadRequestError struct{ *APIError }

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("chat completion request invalid: %s", e.APIError.Error())
}

// QuotaExceededError means the account has no credit left for completions.
type QuotaExceededError struct{ *APIError }

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("provider quota exhausted: %s", e.APIError.Error())
}

// ServerError is a 5xx that survived the retry budget.
type ServerError struct{ *APIError }

func (e *ServerError) Error() string {
	return fmt.Sprintf("provider failed the completion: %s", e.APIError.Error())
}

// UnreachableError means no HTTP response came back at all, e.g. a local
// Ollama daemon that is not running.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "llm endpoint unreachable"
	}
	if e.Host == "" {
		return fmt.Sprintf("llm endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("llm endpoint %s unreachable: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// FailureKind labels a completion error for logs. It returns "" for errors
// that did not come from a runtime.
func FailureKind(err error) string {
	var (
		auth  *AuthError
		rate  *RateLimitError
		model *ModelNotFoundError
		bad   *BadRequestError
		quota *QuotaExceededError
		srv   *ServerError
		down  *UnreachableError
		api   *APIError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &auth):
		return "auth"
	case errors.As(err, &quota):
		return "quota"
	case errors.As(err, &rate):
		return "rate_limit"
	case errors.As(err, &model):
		return "model"
	case errors.As(err, &bad):
		return "bad_request"
	case errors.As(err, &srv):
		return "server"
	case errors.As(err, &down):
		return "unreachable"
	case errors.As(err, &api):
		return "api"
	}
	return ""
}
