// Package config provides configuration loading and validation for stashbox.
//
// The package handles YAML configuration files, environment variables, and CLI flags
// with automatic merging and validation using go-playground/validator.
//
// # Configuration Precedence
//
// Values are loaded in this order (later sources override earlier ones):
//
//  1. Default values
//  2. Configuration file(s) - multiple files merged left-to-right
//  3. Environment variables (STASHBOX_ prefix)
//  4. CLI flags
//
// # Usage
//
//	cfg, err := config.Load([]string{"config.yaml"}, cmd.Flags())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Store in context for subcommands
//	ctx = config.WithContext(ctx, cfg)
//
//	// Retrieve later
//	cfg, err = config.FromContext(ctx)
//
// # Environment Variables
//
// All config keys map to environment variables with STASHBOX_ prefix:
//   - server.port → STASHBOX_SERVER_PORT
//   - token.secret → STASHBOX_TOKEN_SECRET
//   - database.tables.objects → STASHBOX_DATABASE_TABLES_OBJECTS
//
// # Configuration Structure
//
//   - Env: dev (colored text logs) or prod (JSON logs)
//   - Server: port, max_upload_size and public_url
//   - Service: token_ttl and cleanup_timeout, in seconds
//   - Token: secret for upload and download tokens
//   - Auth: jwt_secret and jwt_issuer for owner bearer tokens
//   - Database: type, dsn, tables.objects and auto_migrate
//   - Storage: blob directory
//   - CORS: cross-origin resource sharing settings
//   - Log: logging level
//
// Secrets must be at least 32 bytes when set.
package config
