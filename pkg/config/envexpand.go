package config

import "os"

// ExpandEnv expands environment variables in raw config content using Go's
// standard library. Supports both ${VAR} and $VAR syntax (standard
// shell-style).
//
// Missing variables expand to empty string. Validation should catch
// required fields that are empty.
func ExpandEnv(data []byte) []byte {
	expanded := os.ExpandEnv(string(data))
	return []byte(expanded)
}
