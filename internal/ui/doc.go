// Package ui holds the terminal presentation layer: lipgloss styles, the
// huh-backed yes/no confirmation used by interactive runs, and the console
// progress reporter for pipeline stages.
package ui
