// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files. It supports configuration for the API
// server, the message broker, the job record store, sandbox execution
// limits and the worker's reporting path.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Broker queue: %s\n", cfg.Broker.Queue)
package config
