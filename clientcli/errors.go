package clientcli

import "errors"

// Errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrNoProfiles      = errors.New("no profiles configured")
	ErrProfileExists   = errors.New("profile already exists")
)

// Errors for configuration validation.
var (
	ErrTokenRequired  = errors.New("owner token is required")
	ErrConfigRequired = errors.New("config is required")
)

// Errors for input validation.
var (
	ErrNoKeys          = errors.New("no keys provided")
	ErrEmptyPath       = errors.New("path is required")
	ErrEmptyKey        = errors.New("key is required")
	ErrBucketRequired  = errors.New("bucket is required")
	ErrIncompleteReply = errors.New("server reply is missing a url")
)
