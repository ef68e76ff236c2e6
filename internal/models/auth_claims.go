package models

import "github.com/golang-jwt/jwt/v5"

type JwtCustomClaims struct {
	UserID string `json:"userID"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// ErrorResponse is the uniform JSON error body returned by handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
