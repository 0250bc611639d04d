package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", cause, KindInternal},
		{"direct", NotFound("task not found"), KindNotFound},
		{"wrapped", fmt.Errorf("approve: %w", InvalidTransition("already judged")), KindInvalidTransition},
		{"with cause", Wrap(KindTransient, "store timeout", cause), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindUpstreamUnavailable, "payment provider unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindUpstreamUnavailable))
	assert.Contains(t, err.Error(), "refused")
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: relation does not exist")))
	assert.Equal(t, "internal error", Message(Wrap(KindInternal, "scan failed", nil)))
	assert.Equal(t, "insufficient coin", Message(InsufficientBalance("insufficient coin")))
}

func TestHTTPStatus(t *testing.T) {
	tests := map[Kind]int{
		KindUnauthorized:        401,
		KindForbidden:           403,
		KindNotFound:            404,
		KindInvalidArgument:     400,
		KindTooLarge:            413,
		KindInsufficientBalance: 402,
		KindInvalidTransition:   409,
		KindConflict:            409,
		KindUpstreamUnavailable: 502,
		KindTransient:           503,
		KindInternal:            500,
	}
	for kind, want := range tests {
		assert.Equal(t, want, HTTPStatus(New(kind, "x")), kind)
	}
	assert.Equal(t, 500, HTTPStatus(errors.New("plain")))
}
