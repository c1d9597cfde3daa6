package feature

import (
	"errors"
	"fmt"
)

const (
	MsgInvalidComment = "Invalid comment"
	MsgUnauthorized   = "Current user is not authorized to perform this action"
	MsgUnexpected     = "Unexpected error to perform this action, please try to reload this page or contact the administrator."
)

// ErrNoCallback is reported when authorization succeeds but nothing was asked to run afterwards.
var ErrNoCallback = errors.New("authorized without a dialog to open")

// ErrRejected is reported when the authorization endpoint answers success=false.
var ErrRejected = errors.New("authorization rejected")

// ErrMalformedAuth is reported when the authorization endpoint claims success without a token.
var ErrMalformedAuth = errors.New("authorization succeeded without a token")

// coder is implemented by remote errors that carry the remote status code.
type coder interface {
	Code() string
}

// RemoteCode extracts the remote status code from err, or "" when it carries none.
func RemoteCode(err error) string {
	var c coder
	if errors.As(err, &c) {
		return c.Code()
	}
	return ""
}

// ErrorMessage maps a remote submission failure code to the text shown in the dialog.
func ErrorMessage(code, issueKey string) string {
	switch code {
	case "400":
		return MsgInvalidComment
	case "401":
		return MsgUnauthorized
	case "404":
		return fmt.Sprintf("Issue %s not found", issueKey)
	default:
		return MsgUnexpected
	}
}
