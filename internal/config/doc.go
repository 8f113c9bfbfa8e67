// Package config loads and validates the receiver configuration from
// a YAML file, providing defaults suitable for a server on localhost.
package config
