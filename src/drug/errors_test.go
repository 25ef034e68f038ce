package drug

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToResponse(t *testing.T) {
	cause := errors.New("cause")

	status, body := toResponse(&ClientInputError{Message: MsgDrugInfoMissing, Err: cause})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrorResponse{Error: MsgDrugInfoMissing}, body)

	status, body = toResponse(fmt.Errorf("wrapped: %w", &ClientInputError{Status: http.StatusRequestEntityTooLarge, Message: MsgPayloadTooLarge}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, status)
	assert.Equal(t, MsgPayloadTooLarge, body.Error)

	status, body = toResponse(&ResponseParseError{Message: MsgVerifyParse, RawResponse: "raw", Err: cause})
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, body.RawResponse)
	assert.Equal(t, "raw", *body.RawResponse)

	status, body = toResponse(&UpstreamModelError{Message: MsgIdentifyFailed, Err: cause})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrorResponse{Error: MsgIdentifyFailed}, body)

	status, body = toResponse(cause)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Nil(t, body.RawResponse)
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("cause")
	assert.ErrorIs(t, &ClientInputError{Message: "m", Err: cause}, cause)
	assert.ErrorIs(t, &UpstreamModelError{Message: "m", Err: cause}, cause)
	assert.ErrorIs(t, &ResponseParseError{Message: "m", Err: cause}, cause)
	assert.Equal(t, "m", (&UpstreamModelError{Message: "m"}).Error())
}
