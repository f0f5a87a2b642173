// Package pipeline generates a project in six ordered stages: validate,
// prepare the output directory, render files, install dependencies,
// initialize version control and write the manifest.
//
// Every stage failure is handed to a recovery.Engine, which decides whether
// the stage is retried, skipped or the run aborted. Aborting in any stage
// other than dependency installation or version control rolls the output
// directory back to its state before the run.
package pipeline
