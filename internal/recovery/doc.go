// Package recovery implements the error recovery engine that wraps every
// generation stage. It normalizes failures into dnaerr errors, keeps a
// bounded history, counts attempts per error code, derives a recovery plan
// from an error's category and severity, and decides whether the caller
// should retry the stage, continue in degraded mode, or abort.
//
// The engine is constructed explicitly and shared by reference; it holds no
// package-level state. History and counters are mutex-guarded so concurrent
// pipeline runs in one process can share a single engine.
package recovery
