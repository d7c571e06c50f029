// Package config provides YAML-based configuration for Velagate Core.
//
// Configuration is loaded from a single config.yaml file with environment
// variable overrides for deployment-specific and secret values.
//
// # Loading Order
//
//  1. Hardcoded defaults
//  2. YAML file values
//  3. Environment variables (VELAGATE_SECTION_KEY)
//
// # Usage
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//
// Secrets (MQTT password, InfluxDB token) should be supplied via
// environment variables rather than committed to the YAML file.
package config
