// Package config provides loading and environment overlay for vary runtime
// configuration. It exposes a Default() baseline, JSON file loading, and a
// VARY_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/vary.json"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: config.DefaultDataDir(), Config: cfg})
//	defer rt.Close()
package config
