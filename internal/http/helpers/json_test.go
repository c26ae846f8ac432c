package helpers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=8"`
}

func readJSON(t *testing.T, contentType, body string) (*httptest.ResponseRecorder, loginBody, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	var v loginBody
	ok := ReadJSON(rr, req, &v)
	return rr, v, ok
}

func TestReadJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, v, ok := readJSON(t, "application/json; charset=utf-8", `{"email":"a@b.co","password":"x"}`)
		require.True(t, ok)
		assert.Equal(t, "a@b.co", v.Email)
	})

	t.Run("wrong content type", func(t *testing.T) {
		rr, _, ok := readJSON(t, "text/plain", `{}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "BAD_REQUEST")
	})

	t.Run("malformed", func(t *testing.T) {
		rr, _, ok := readJSON(t, "application/json", `{"email":`)
		assert.False(t, ok)
		assert.Contains(t, rr.Body.String(), "INVALID_JSON")
	})

	t.Run("validation reports json names", func(t *testing.T) {
		rr, _, ok := readJSON(t, "application/json", `{"email":"nope","password":"far-too-long"}`)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "MISSING_FIELDS")
		assert.Contains(t, rr.Body.String(), "email (email)")
		assert.Contains(t, rr.Body.String(), "password (max)")
	})

	t.Run("too large", func(t *testing.T) {
		big := `{"email":"` + strings.Repeat("a", maxBodySize) + `"}`
		rr, _, ok := readJSON(t, "application/json", big)
		assert.False(t, ok)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	})
}

func TestValidateStruct_NonStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(map[string]string{"a": "b"}))
	assert.NoError(t, ValidateStruct((*loginBody)(nil)))
	assert.Error(t, ValidateStruct(&loginBody{}))
}
