// Package config handles loading and validating Stocky Core configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file (same variables as the process environment)
//   - Overriding with STOCKY_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
