// Package config handles loading and validating sfcd configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables (SFC_ prefix)
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (MQTT password, InfluxDB token) should be set via
//     environment variables rather than committed config files
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.API.Port)
package config
