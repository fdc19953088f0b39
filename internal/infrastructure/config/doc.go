// Package config handles loading and validating Gray Store configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Watching the file and reloading on change
//
// Security Considerations:
//   - Cipher keys are never read from the file; cipher.key_env names the
//     environment variable that holds the key
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/graystore.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, db := range cfg.Databases {
//	    fmt.Println(db.Path)
//	}
package config
