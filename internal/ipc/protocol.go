package ipc

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandShow    CommandType = "show"
	CommandRelease CommandType = "release"
	CommandCancel  CommandType = "cancel"
	CommandStatus  CommandType = "status"
)

// Direction values accepted by the show command.
const (
	DirectionNext     = "next"
	DirectionPrevious = "previous"
)

// Response status values.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// ErrInvalidRequest marks requests that fail parsing or schema validation.
var ErrInvalidRequest = errors.New("invalid request")

// InvalidRequestError carries the reason a request was rejected. It matches
// ErrInvalidRequest with errors.Is.
type InvalidRequestError struct {
	Reason string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

func (e *InvalidRequestError) Is(target error) bool {
	return target == ErrInvalidRequest
}

// Request represents an IPC request from client to server
type Request struct {
	Command   CommandType `json:"command"`
	Direction string      `json:"direction,omitempty"`
	Modifiers []string    `json:"modifiers,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData represents the data returned by the status command
type StatusData struct {
	DaemonRunning bool   `json:"daemon_running"`
	Transport     string `json:"transport"`
	Phase         string `json:"phase"`
	WindowCount   int    `json:"window_count"`
	Cursor        int    `json:"cursor"`
	Selected      string `json:"selected,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

//go:embed request.schema.json
var requestSchemaJSON []byte

const requestSchemaURL = "https://github.com/1broseidon/alttab/ipc/request.schema.json"

var (
	requestSchemaOnce sync.Once
	requestSchema     *jsonschema.Schema
	requestSchemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	requestSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(requestSchemaURL, bytes.NewReader(requestSchemaJSON)); err != nil {
			requestSchemaErr = fmt.Errorf("add request schema: %w", err)
			return
		}
		requestSchema, requestSchemaErr = compiler.Compile(requestSchemaURL)
	})
	return requestSchema, requestSchemaErr
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = encoded
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes and validates it against the
// request schema. Errors match ErrInvalidRequest.
func ParseRequest(data []byte) (*Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, &InvalidRequestError{Reason: "empty request"}
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, &InvalidRequestError{Reason: "malformed JSON", Err: err}
	}
	if err := validateInstance(instance); err != nil {
		return nil, err
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &InvalidRequestError{Reason: "malformed request", Err: err}
	}
	return &req, nil
}

// Validate checks the request against the schema the server enforces.
func (r *Request) Validate() error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("failed to decode request: %w", err)
	}
	return validateInstance(instance)
}

func validateInstance(instance any) error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("request schema: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		reason := err.Error()
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			reason = describeValidation(verr)
		}
		return &InvalidRequestError{Reason: reason, Err: err}
	}
	return nil
}

// describeValidation returns the deepest cause of a schema failure, which is
// the most specific message.
func describeValidation(v *jsonschema.ValidationError) string {
	for len(v.Causes) > 0 {
		v = v.Causes[0]
	}
	loc := v.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return fmt.Sprintf("%s: %s", loc, v.Message)
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
