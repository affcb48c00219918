package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func up(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("unreachable") }

func TestRunAggregates(t *testing.T) {
	c := NewChecker()
	c.Register("index", ErrorCheck(up))
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.RegisterOptional("redis", ErrorCheck(down))
	r := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, r.Status)
	assert.Equal(t, "unreachable", r.Components["redis"].Message)

	c.Register("index", ErrorCheck(down))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.RegisterOptional("redis", ErrorCheck(down))
	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	c.Register("index", ErrorCheck(down))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
