package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// -----------------------------
// Profile
// -----------------------------

func GetProfile(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := DB.FindUserByID(c.Request.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	c.JSON(http.StatusOK, user)
}

func UpdateProfile(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body UpdateProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindingError(c, err)
		return
	}

	ctx := c.Request.Context()

	user, err := DB.FindUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	// Changing email requires it to be free.
	if body.Email != user.Email {
		if _, err := DB.FindUserByEmail(ctx, body.Email); err == nil {
			jsonError(c, http.StatusBadRequest, "Email already in use")
			return
		} else if !errors.Is(err, ErrNotFound) {
			jsonError(c, http.StatusInternalServerError, "Server error")
			return
		}
	}

	updated, err := DB.UpdateUserProfile(ctx, userID, body.Name, body.Email)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	c.JSON(http.StatusOK, updated)
}

func UpdatePassword(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		jsonError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body UpdatePasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		bindingError(c, err)
		return
	}

	ctx := c.Request.Context()

	user, err := DB.FindUserByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(body.CurrentPassword)) != nil {
		jsonError(c, http.StatusUnauthorized, "Current password is incorrect")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if err := DB.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}
