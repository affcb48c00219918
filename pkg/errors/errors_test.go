package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("parsing: %w", ErrInvalidInput), http.StatusBadRequest},
		{"unknown ranking", ErrUnknownRanking, http.StatusBadRequest},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestCorruptf(t *testing.T) {
	err := Corruptf("slot %d", 7)
	assert.ErrorIs(t, err, ErrCorruptRecord)
	assert.Contains(t, err.Error(), "slot 7")
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "bad %s", "q")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: bad q", err.Error())
}
