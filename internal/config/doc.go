// Package config loads the capture server configuration from built-in
// defaults, an optional YAML file and CXADC_* environment variables.
package config
