// Package config handles loading and validating the ILP relay configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with ILPRELAY_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - MQTT credentials should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ILP.Host)
package config
