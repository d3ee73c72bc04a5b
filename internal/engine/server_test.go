package engine

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
)

func TestQueryIntUsesDefaultOnMissingOrMalformedValue(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/frames?start=5&bad=nope", nil)
	assert.Equal(t, 5, queryInt(r, "start", 0))
	assert.Equal(t, 0, queryInt(r, "bad", 0))
	assert.Equal(t, 42, queryInt(r, "missing", 42))
}

func TestPathIntReadsMuxRouteVar(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/frames/12", nil)
	r = mux.SetURLVars(r, map[string]string{"index": "12"})

	v, ok := pathInt(r, "index")
	require := assert.New(t)
	require.True(ok)
	require.Equal(12, v)

	_, ok = pathInt(r, "missing")
	require.False(ok)
}
