// Package config loads and validates the worker's YAML configuration.
//
// Every section carries its own Validate method and Load refuses a file
// that fails any of them, so a misconfigured worker dies at startup
// instead of misbehaving mid-recording.
package config
