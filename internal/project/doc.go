// Package project defines the resolved inputs of a generation run: the
// immutable ProjectConfig, the GenerationOptions execution flags and the
// supported package managers.
package project
