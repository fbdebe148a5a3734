package main

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const tokenLifetime = 30 * 24 * time.Hour

// Claims carries the user identity inside the session token. Subject is the
// user id in hex form; name and email let clients render auth state without
// an extra round trip.
type Claims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func jwtSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "defaultsecret"
	}
	return []byte(secret)
}

func GenerateToken(user *User) (string, error) {
	now := time.Now()
	claims := Claims{
		Name:  user.Name,
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret())
}

// ========================
// REGISTER HANDLER
// ========================

func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	ctx := c.Request.Context()

	if _, err := DB.FindUserByEmail(ctx, req.Email); err == nil {
		jsonError(c, http.StatusBadRequest, "User already exists")
		return
	} else if !errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	user := &User{
		Name:          req.Name,
		Email:         req.Email,
		Password:      string(hash),
		CreatedEvents: []primitive.ObjectID{},
		JoinedEvents:  []primitive.ObjectID{},
	}
	if err := DB.CreateUser(ctx, user); err != nil {
		if isDuplicate(err) {
			jsonError(c, http.StatusBadRequest, "User already exists")
			return
		}
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	token, err := GenerateToken(user)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusCreated, AuthResponse{
		ID:    user.ID.Hex(),
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	})
}

// ========================
// LOGIN HANDLER
// ========================

func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindingError(c, err)
		return
	}

	// Unknown email and wrong password answer identically so the endpoint
	// cannot be used to probe for accounts.
	user, err := DB.FindUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, ErrNotFound) {
		jsonError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Server error")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		jsonError(c, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := GenerateToken(user)
	if err != nil {
		jsonError(c, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		ID:    user.ID.Hex(),
		Name:  user.Name,
		Email: user.Email,
		Token: token,
	})
}
