package jira

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorResponse is the standard Jira error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}

// CommentRequest is the body of POST /rest/api/2/issue/{key}/comment.
type CommentRequest struct {
	Body string `json:"body"`
}

// Comment is the subset of the Jira comment resource we read back.
type Comment struct {
	ID      string `json:"id"`
	Self    string `json:"self,omitempty"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
	Author  *User  `json:"author,omitempty"`
}

type User struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// StatusError is a non-2xx answer. Code exposes the status as the string the
// comment dialog maps to a message.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Messages   []string
}

func (e *StatusError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("jira API error (%d) on %s %s: %s", e.StatusCode, e.Method, e.Path, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("unexpected status %d on %s %s", e.StatusCode, e.Method, e.Path)
}

func (e *StatusError) Code() string {
	return strconv.Itoa(e.StatusCode)
}

func newStatusError(status int, method, path string, body []byte) *StatusError {
	e := &StatusError{StatusCode: status, Method: method, Path: path}
	var jiraErr ErrorResponse
	if decodeJSON(body, &jiraErr) == nil {
		e.Messages = append(e.Messages, jiraErr.ErrorMessages...)
		for field, msg := range jiraErr.Errors {
			e.Messages = append(e.Messages, field+": "+msg)
		}
	}
	if len(e.Messages) == 0 && len(body) > 0 && len(body) < 512 {
		e.Messages = []string{strings.TrimSpace(string(body))}
	}
	return e
}
