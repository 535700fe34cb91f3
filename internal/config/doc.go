// Package config loads the settings of a periphery node from the
// environment.
//
// Every variable has a default suited to a single-host development
// cluster; Validate rejects combinations a node cannot start with, such as
// a root without a model manifest.
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if cfg.IsRoot() {
//	    fmt.Println("planning", cfg.Planning.ManifestPath)
//	}
package config
