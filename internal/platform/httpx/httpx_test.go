package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorForStatus(t *testing.T) {
	cases := map[int]error{
		http.StatusOK:                  nil,
		http.StatusNotModified:         nil,
		http.StatusBadRequest:          ErrValidation,
		http.StatusUnprocessableEntity: ErrValidation,
		http.StatusUnauthorized:        ErrUnauthorized,
		http.StatusForbidden:           ErrForbidden,
		http.StatusNotFound:            ErrNotFound,
		http.StatusConflict:            ErrDuplicate,
		http.StatusTooManyRequests:     ErrUpstream,
		http.StatusServiceUnavailable:  ErrUpstream,
	}
	for status, want := range cases {
		require.Equal(t, want, ErrorForStatus(status), "status %d", status)
	}
}

func TestRespondErrorWritesProblem(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("screens: open: %w", ErrNotFound))

	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, "Not Found", problem.Title)
	require.Contains(t, problem.Detail, "resource not found")
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, errors.New("pool exhausted"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.NotContains(t, rr.Body.String(), "pool exhausted")
}
