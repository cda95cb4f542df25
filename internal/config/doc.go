// Package config provides configuration management for kernelctl.
//
// Configuration is layered. Later layers override earlier ones key by key;
// lists are replaced as a whole:
//
//  1. Default configuration (GetDefaultConfig)
//  2. User configuration (~/.config/kernelctl/config.yaml)
//  3. Project configuration (./.kernelctl/config.yaml)
//
// An explicit file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	logging:
//	  level: info          # debug, info, warn, error
//	  format: text         # text or json
//
//	manifests:
//	  paths: ["manifests"] # files or directories of subsystem manifests
//	  watch: false
//
//	kernel:
//	  supportedModelVersions: ">=1.0.0, <2.0.0"
//	  startTimeout: 30s
//	  stopTimeout: 10s
//
//	metrics:
//	  enabled: false
//	  address: localhost:9464
//
//	tracing:
//	  enabled: false
//	  exporter: none       # none or stdout
//	  serviceName: kernelctl
//
// Every loaded configuration is checked with Validate.
package config
