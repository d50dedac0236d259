package pingerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus_MapsEveryKind(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("x"), 404},
		{Conflict("x"), 409},
		{Unauthorized("x"), 401},
		{BadRequest("x"), 400},
		{UpstreamUnavailable("x", nil), 502},
		{UpstreamAuth("x", nil), 401},
		{Internal("x", nil), 500},
		{errors.New("plain error"), 500},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HTTPStatus(c.err))
	}
}

func TestError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("root cause")
	err := Internal("wrapped", cause)
	assert.ErrorIs(t, err, cause)
}

func TestKindOf_DefaultsToInternalForPlainErrors(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(NotFound("missing")))
}
