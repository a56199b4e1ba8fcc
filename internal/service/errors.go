package service

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("username or email already taken")
	ErrInvalidCredentials = errors.New("username or password incorrect")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenInvalid       = errors.New("invalid or expired token")
	ErrStaleToken         = errors.New("token expired, please log in again.")
	ErrSamePassword       = errors.New("new password cannot be the same as the old password")
	ErrPasswordIncorrect  = errors.New("password incorrect")
)
