// Package cli defines the Cobra command tree for the dna CLI. Each file in
// this package registers one top-level command (new, templates, config,
// doctor, version) with the root command. Commands delegate to internal
// packages for business logic and only handle flag parsing, I/O formatting,
// and user interaction.
package cli
