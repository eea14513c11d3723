package inbox

import (
	"encoding/json"
	"net/http"

	"github.com/versia-works/federation/errors"
)

// Response is the bounded outcome of processing one inbound request.
// Every path through the processor produces one; nothing escapes as a
// panic or bare error.
type Response struct {
	Status int
	Body   string
	JSON   bool
}

// Text builds a plain-text response.
func Text(status int, body string) Response {
	return Response{Status: status, Body: body}
}

// Accepted is the empty 201 returned for successful creations and for
// defederated senders, which are indistinguishable from success on the
// wire.
func Accepted() Response {
	return Response{Status: http.StatusCreated}
}

// JSONError builds a JSON error document of the shape
// {"error": ..., "description": ...}.
func JSONError(status int, errText, description string) Response {
	doc := struct {
		Error       string `json:"error"`
		Description string `json:"description,omitempty"`
	}{Error: errText, Description: description}
	b, err := json.Marshal(doc)
	if err != nil {
		return Response{Status: http.StatusInternalServerError, Body: `{"error":"internal_error"}`, JSON: true}
	}
	return Response{Status: status, Body: string(b), JSON: true}
}

// FromError maps a handler error onto a Response. APIErrors carry their
// own status; invalid-class errors become 400s; everything else is a 500
// with the detail withheld from the caller.
func FromError(err error) Response {
	if apiErr := errors.AsAPIError(err); apiErr != nil {
		return JSONError(apiErr.Status, apiErr.ErrorText, apiErr.Description)
	}
	status := errors.StatusFor(err)
	if status == http.StatusInternalServerError {
		return JSONError(status, "internal_error", "")
	}
	return JSONError(status, "invalid_request", err.Error())
}
