// Package config manages user-level settings stored at ~/.dna/config.yaml.
// It provides functions to load, read, and write configuration keys such as
// the recovery retry limit and the default minimum free disk space.
package config
