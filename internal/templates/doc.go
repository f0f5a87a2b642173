// Package templates is the registry of project templates and DNA modules
// shipped with the CLI. Definitions are embedded, validated against a JSON
// schema on load, and looked up by id.
package templates
