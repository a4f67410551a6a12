// Package config handles loading and validating the onward auth service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Reading an optional .env file placed next to the YAML file
//   - Overriding with ONWARD_* environment variables
//   - Validation of required fields and security parameters
//
// Security Considerations:
//   - The JWT secret and database DSN should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Argon2id parameters are validated against the algorithm minimums
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Security.JWT.AccessTokenTTL)
package config
