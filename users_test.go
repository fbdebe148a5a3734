package main

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileNeverExposesPassword(t *testing.T) {
	r := newTestRouter()
	ann := registerUser(t, r, "Ann", "ann@x.com", "secret1")

	w := doRequest(t, r, http.MethodGet, "/api/users/profile", ann.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "secret1")

	profile := decodeJSON[User](t, w)
	assert.Equal(t, "Ann", profile.Name)
	assert.Equal(t, "ann@x.com", profile.Email)
}

func TestUpdateProfile(t *testing.T) {
	r := newTestRouter()
	ann := registerUser(t, r, "Ann", "ann@x.com", "secret1")
	registerUser(t, r, "Bob", "bob@x.com", "secret2")

	// taking another user's email is rejected
	w := doRequest(t, r, http.MethodPut, "/api/users/profile", ann.Token, gin.H{
		"name": "Ann", "email": "bob@x.com",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Email already in use"}`, w.Body.String())

	// keeping your own email is not a conflict
	w = doRequest(t, r, http.MethodPut, "/api/users/profile", ann.Token, gin.H{
		"name": "Ann Smith", "email": "ann@x.com",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Ann Smith", decodeJSON[User](t, w).Name)

	w = doRequest(t, r, http.MethodPut, "/api/users/profile", ann.Token, gin.H{
		"name": "Annie", "email": "annie@x.com",
	})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decodeJSON[User](t, w)
	assert.Equal(t, "Annie", updated.Name)
	assert.Equal(t, "annie@x.com", updated.Email)

	// malformed email fails binding
	w = doRequest(t, r, http.MethodPut, "/api/users/profile", ann.Token, gin.H{
		"name": "Annie", "email": "nope",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdatePassword(t *testing.T) {
	r := newTestRouter()
	ann := registerUser(t, r, "Ann", "ann@x.com", "secret1")

	w := doRequest(t, r, http.MethodPut, "/api/users/password", ann.Token, gin.H{
		"currentPassword": "not-the-password", "newPassword": "secret2",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Current password is incorrect"}`, w.Body.String())

	w = doRequest(t, r, http.MethodPut, "/api/users/password", ann.Token, gin.H{
		"currentPassword": "secret1", "newPassword": "short",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, r, http.MethodPut, "/api/users/password", ann.Token, gin.H{
		"currentPassword": "secret1", "newPassword": "secret2",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"message":"Password updated successfully"}`, w.Body.String())

	// old password stops working, new one logs in
	w = doRequest(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ann@x.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(t, r, http.MethodPost, "/api/auth/login", "", gin.H{
		"email": "ann@x.com", "password": "secret2",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
