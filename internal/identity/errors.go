package identity

import (
	"context"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/brizzai/desktop-auth/internal/auth/autherr"
	"github.com/brizzai/desktop-auth/internal/requester"
)

// errorBody covers both the current error shape ({code, error_code, msg})
// and the older OAuth shape ({error, error_description}).
type errorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (b errorBody) message() string {
	for _, m := range []string{b.Msg, b.ErrorDescription, b.Message, b.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

var codesByErrorCode = map[string]autherr.Code{
	"invalid_credentials":        autherr.CodeInvalidCredentials,
	"email_not_confirmed":        autherr.CodeEmailNotConfirmed,
	"user_already_exists":        autherr.CodeUserAlreadyRegistered,
	"email_exists":               autherr.CodeUserAlreadyRegistered,
	"weak_password":              autherr.CodeInvalidInput,
	"validation_failed":          autherr.CodeInvalidInput,
	"session_not_found":          autherr.CodeSessionExpired,
	"session_expired":            autherr.CodeSessionExpired,
	"refresh_token_not_found":    autherr.CodeSessionExpired,
	"refresh_token_already_used": autherr.CodeSessionExpired,
	"bad_jwt":                    autherr.CodeSessionExpired,
}

// Older deployments send no error_code, only a message.
var codesByMessage = []struct {
	fragment string
	code     autherr.Code
}{
	{"invalid login credentials", autherr.CodeInvalidCredentials},
	{"email not confirmed", autherr.CodeEmailNotConfirmed},
	{"already registered", autherr.CodeUserAlreadyRegistered},
	{"already exists", autherr.CodeUserAlreadyRegistered},
	{"invalid refresh token", autherr.CodeSessionExpired},
}

var userMessages = map[autherr.Code]string{
	autherr.CodeInvalidCredentials:    "invalid email or password",
	autherr.CodeEmailNotConfirmed:     "email address has not been confirmed",
	autherr.CodeUserAlreadyRegistered: "an account with this email already exists",
	autherr.CodeSessionExpired:        "session has expired, please sign in again",
	autherr.CodeTransientNetwork:      "identity backend is unavailable, please try again later",
}

// classify maps an identity backend error response to a coded error.
// tokenUse marks calls authorized with a user token, where 401 and 403 mean
// the token itself was rejected.
func classify(resp *requester.Response, tokenUse bool) *autherr.Error {
	var body errorBody
	_ = resp.Decode(&body)
	detail := body.message()
	if detail == "" {
		detail = resp.ErrorMessage()
	}

	code, ok := codesByErrorCode[body.ErrorCode]
	if !ok {
		code, ok = codeFromMessage(detail)
	}
	if !ok && tokenUse && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		code, ok = autherr.CodeSessionExpired, true
	}
	// A 5xx is an outage, not a verdict on the credentials.
	if !ok && resp.StatusCode >= http.StatusInternalServerError {
		code, ok = autherr.CodeTransientNetwork, true
	}
	if !ok {
		code = autherr.CodeIdentityBackend
	}

	msg, known := userMessages[code]
	if !known {
		msg = detail
	}
	e := autherr.New(code, msg).WithContext("status", resp.StatusCode).WithContext("detail", detail)
	if body.ErrorCode != "" {
		e.WithContext("error_code", body.ErrorCode)
	}
	return e
}

func codeFromMessage(msg string) (autherr.Code, bool) {
	lower := strings.ToLower(msg)
	for _, m := range codesByMessage {
		if strings.Contains(lower, m.fragment) {
			return m.code, true
		}
	}
	return "", false
}

// transportError wraps a failed exchange. Cancellation is reported as such
// rather than as a network problem.
func transportError(ctx context.Context, err error) *autherr.Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return autherr.Wrap(autherr.CodeCancelled, "identity request cancelled", err)
	}
	return autherr.Wrap(autherr.CodeTransientNetwork, "identity backend unreachable", err)
}

// validateCredentials rejects malformed input before any request is made.
func validateCredentials(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return autherr.New(autherr.CodeInvalidInput, "password is required")
	}
	return nil
}

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return autherr.New(autherr.CodeInvalidInput, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return autherr.Newf(autherr.CodeInvalidInput, "invalid email address %q", email)
	}
	return nil
}
