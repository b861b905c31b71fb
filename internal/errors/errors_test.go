package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeTextNotFound, "original text not found").
		With("location", "1:2:3").
		With("hint", "42")

	assert.Equal(t, "TEXT_NOT_FOUND: original text not found [hint=42 location=1:2:3]", err.Error())
}

func TestGetCodeThroughWrapping(t *testing.T) {
	base := New(CodeConflict, "stale stage")
	wrapped := fmt.Errorf("advance: %w", base)

	assert.Equal(t, CodeConflict, GetCode(wrapped))
	assert.True(t, IsCode(wrapped, CodeConflict))
	assert.Equal(t, CodeUnknown, GetCode(fmt.Errorf("plain")))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("x: %w", New(CodeAlreadyApplied, "applied twice"))
	assert.ErrorIs(t, err, New(CodeAlreadyApplied, ""))
	assert.NotErrorIs(t, err, New(CodeConflict, ""))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:           http.StatusBadRequest,
		CodePermissionDenied:     http.StatusForbidden,
		CodeInvalidTransition:    http.StatusUnprocessableEntity,
		CodeConflict:             http.StatusConflict,
		CodeTextNotFound:         http.StatusUnprocessableEntity,
		CodeAlreadyApplied:       http.StatusConflict,
		CodeStructuralCorruption: http.StatusUnprocessableEntity,
		CodeNotFound:             http.StatusNotFound,
		CodeMergeIncomplete:      http.StatusConflict,
		CodeRewriteFailed:        http.StatusBadGateway,
		CodeUnknown:              http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(CodeRewriteFailed, "rewrite service failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, CodeTextNotFound.RollsBack())
	assert.False(t, CodeConflict.RollsBack())
}
