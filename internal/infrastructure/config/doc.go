// Package config handles loading and validating the Refoss bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Device passwords and broker credentials should be supplied through
// REFOSS_BRIDGE_* environment variables rather than committed to the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range cfg.Refoss.Devices {
//	    fmt.Println(d.Host)
//	}
package config
