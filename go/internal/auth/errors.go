package auth

import "errors"

var (
	ErrNoCredential  = errors.New("no credential available")
	ErrRefreshFailed = errors.New("credential refresh failed")
)
