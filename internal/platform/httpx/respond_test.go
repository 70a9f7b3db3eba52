package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{fmt.Errorf("ap: invoice 9: %w", ErrNotFound), http.StatusNotFound, "ap: invoice 9: resource not found"},
		{fmt.Errorf("%w: run in progress", ErrConflict), http.StatusConflict, "conflict: run in progress"},
		{fmt.Errorf("%w: amount", ErrValidation), http.StatusBadRequest, "validation failed: amount"},
		{fmt.Errorf("%w: source foo", ErrUnsupported), http.StatusUnprocessableEntity, "unsupported: source foo"},
		{errors.New("connection refused"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code)

		var body Envelope
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.False(t, body.Success)
		require.Equal(t, tc.msg, body.Error)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	var target struct {
		Name string `json:"name"`
	}
	err := DecodeJSON(req, &target)
	require.ErrorIs(t, err, ErrValidation)
}

func TestOKWrapsData(t *testing.T) {
	rr := httptest.NewRecorder()
	OK(rr, http.StatusCreated, map[string]int{"id": 4})
	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"success":true,"data":{"id":4}}`, rr.Body.String())
}
