package ipc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestValid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Request
	}{
		{"show next", `{"command":"show","direction":"next","modifiers":["alt"]}`, Request{Command: CommandShow, Direction: "next", Modifiers: []string{"alt"}}},
		{"show without modifiers", `{"command":"show","direction":"next"}`, Request{Command: CommandShow, Direction: "next"}},
		{"show previous", `{"command":"show","direction":"previous","modifiers":["super","shift"]}`, Request{Command: CommandShow, Direction: "previous", Modifiers: []string{"super", "shift"}}},
		{"release", `{"command":"release"}`, Request{Command: CommandRelease}},
		{"cancel", "  {\"command\":\"cancel\"}\n", Request{Command: CommandCancel}},
		{"status", `{"command":"status"}`, Request{Command: CommandStatus}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *req)
		})
	}
}

func TestParseRequestInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"not json", "show next"},
		{"array", `["show"]`},
		{"missing command", `{"direction":"next"}`},
		{"unknown command", `{"command":"explode"}`},
		{"bad direction", `{"command":"show","direction":"sideways"}`},
		{"show without direction", `{"command":"show"}`},
		{"show with only modifiers", `{"command":"show","modifiers":["alt"]}`},
		{"modifiers not array", `{"command":"show","direction":"next","modifiers":"alt"}`},
		{"duplicate modifiers", `{"command":"show","direction":"next","modifiers":["alt","alt"]}`},
		{"modifier with spaces", `{"command":"show","direction":"next","modifiers":["left alt"]}`},
		{"unknown field", `{"command":"show","direction":"next","window":1}`},
		{"direction on release", `{"command":"release","direction":"next"}`},
		{"modifiers on cancel", `{"command":"cancel","modifiers":["alt"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.in))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRequest), "error %v should match ErrInvalidRequest", err)

			var ire *InvalidRequestError
			require.True(t, errors.As(err, &ire))
			assert.NotEmpty(t, ire.Reason)
		})
	}
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, (&Request{Command: CommandShow, Direction: DirectionPrevious, Modifiers: []string{"alt"}}).Validate())
	assert.ErrorIs(t, (&Request{Command: "bogus"}).Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, (&Request{Command: CommandShow}).Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, (&Request{Command: CommandStatus, Direction: DirectionNext}).Validate(), ErrInvalidRequest)
}

func TestResponses(t *testing.T) {
	ok, err := NewOKResponse(StatusData{Phase: "idle", WindowCount: 3})
	require.NoError(t, err)
	assert.Equal(t, StatusOK, ok.Status)

	var status StatusData
	require.NoError(t, json.Unmarshal(ok.Data, &status))
	assert.Equal(t, 3, status.WindowCount)

	empty, err := NewOKResponse(nil)
	require.NoError(t, err)
	data, err := empty.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"OK"}`, string(data))

	data, err = NewErrorResponse("boom").Marshal()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ERROR","error":"boom"}`, string(data))
}
