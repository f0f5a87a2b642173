package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dna-labs/dna/internal/branding"
	"github.com/dna-labs/dna/internal/dnaerr"
	"github.com/dna-labs/dna/internal/platform"
)

func (p *Pipeline) prepareDirectory(_ context.Context, st *state) (StageState, error) {
	if st.opts.DryRun {
		return StageSkipped, nil
	}
	run := st.run
	path := st.cfg.OutputPath

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); isNotExist(err) {
		return StageFailed, dnaerr.Filesystem(dnaerr.CodeParentNotFound,
			fmt.Sprintf("parent directory %s does not exist", parent)).
			WithSuggestion("Create the parent directory or choose a different --output-dir").
			WithAutoFix(func() error { return mkdirTracked(run, parent) })
	}

	info, err := os.Lstat(path)
	switch {
	case err == nil && run.created(path):
		// Left over from an earlier attempt of this stage.
	case err == nil:
		if err := p.replaceExisting(st, path, info); err != nil {
			return StageFailed, err
		}
		fallthrough
	case isNotExist(err):
		if err := os.Mkdir(path, platform.DirPerm); err != nil {
			return StageFailed, dnaerr.From(err)
		}
		run.addCreated(path)
	default:
		return StageFailed, dnaerr.From(err)
	}

	if err := platform.Chmod(path, platform.DirPerm); err != nil {
		return StageFailed, dnaerr.From(err)
	}
	return StageCompleted, nil
}

// replaceExisting handles an output path that already exists: it asks the
// operator when allowed, backs the tree up when requested and removes it.
func (p *Pipeline) replaceExisting(st *state, path string, info fs.FileInfo) *dnaerr.Error {
	if !st.overwrite && st.opts.Interactive && p.confirmer != nil {
		ok, err := p.confirmer.Confirm(fmt.Sprintf("%s already exists. Overwrite it?", path))
		if err != nil {
			st.log.Warn().Err(err).Msg("overwrite prompt failed")
		}
		st.overwrite = ok
	}
	if !st.overwrite {
		return dnaerr.Filesystem(dnaerr.CodeDirectoryExists,
			fmt.Sprintf("directory %s already exists", path)).
			WithSuggestion("Choose a different name, or pass --overwrite (with --backup to keep a copy)").
			WithDetail("path", path)
	}
	if !info.IsDir() {
		return dnaerr.Filesystem(dnaerr.CodeFileExists,
			fmt.Sprintf("%s exists and is not a directory", path)).
			WithSuggestion("Remove the file or choose a different output path")
	}

	// A retried attempt keeps the first backup: the tree may already be
	// partly removed.
	if st.opts.BackupOnOverwrite && st.run.BackupPath == "" {
		backup := fmt.Sprintf("%s%s%d", path, branding.BackupInfix(), p.now().UnixMilli())
		if err := backupTree(path, backup); err != nil {
			return dnaerr.Filesystem(dnaerr.CodeBackupFailed,
				fmt.Sprintf("failed to back up %s", path)).
				WithCause(err).
				WithSuggestion("Check free disk space, or run without --backup")
		}
		st.run.BackupPath = backup
		st.log.Info().Str("backup", backup).Msg("existing directory backed up")
	}

	if err := p.removeAll(path); err != nil {
		return dnaerr.Filesystem(dnaerr.CodeFilesystemError,
			fmt.Sprintf("failed to remove existing directory %s", path)).
			WithCause(err)
	}
	return nil
}

// backupTree copies path to backup, which must not exist. A partial copy is
// removed; an existing backup is never touched.
func backupTree(path, backup string) error {
	if _, err := os.Lstat(backup); err == nil {
		return fmt.Errorf("backup destination %s already exists", backup)
	}
	if err := platform.CopyDir(path, backup); err != nil {
		_ = os.RemoveAll(backup)
		return err
	}
	return nil
}

// mkdirTracked creates dir and any missing parents, recording the topmost
// directory it created on run so rollback can remove it.
func mkdirTracked(run *Run, dir string) error {
	top := ""
	for d := dir; ; {
		if _, err := os.Stat(d); err == nil {
			break
		}
		top = d
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	if err := os.MkdirAll(dir, platform.DirPerm); err != nil {
		return err
	}
	if top != "" {
		run.addCreated(top)
	}
	return nil
}

// Rollback undoes the filesystem changes of a failed run: it removes the
// paths the run created, newest first, then moves the backup back into
// place. Errors are logged and recorded on the run, never returned.
// Rollback is idempotent and reports whether the run is clean.
func (p *Pipeline) Rollback(run *Run) bool {
	if run.Status == StatusRolledBack {
		return true
	}
	log := p.log.With().Str("run_id", run.ID).Logger()
	var errs []error

	for i := len(run.CreatedPaths) - 1; i >= 0; i-- {
		path := run.CreatedPaths[i]
		if _, err := os.Lstat(path); isNotExist(err) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", path, err))
		}
	}

	if run.BackupPath != "" {
		if _, err := os.Lstat(run.BackupPath); err == nil {
			// Whatever is left of the original after a failed removal is
			// also in the backup.
			if _, err := os.Lstat(run.OutputPath); err == nil && !run.created(run.OutputPath) {
				if err := os.RemoveAll(run.OutputPath); err != nil {
					errs = append(errs, fmt.Errorf("clearing %s: %w", run.OutputPath, err))
				}
			}
			if err := restoreBackup(run.BackupPath, run.OutputPath); err != nil {
				errs = append(errs, err)
			}
		}
	}

	ok := len(errs) == 0
	if !ok {
		cause := errors.Join(errs...)
		derr := dnaerr.Rollback(dnaerr.CodeRollbackFailed, "rollback did not complete").
			WithCause(cause).
			WithDetail("output", run.OutputPath)
		if run.BackupPath != "" {
			derr.WithDetail("backup", run.BackupPath)
		}
		log.Error().Err(derr).Msg("rollback failed")
		run.RollbackErrors = append(run.RollbackErrors, derr)
	} else if run.Status == StatusFailed {
		_ = run.transition(StatusRolledBack)
		log.Info().Msg("rolled back")
	}
	p.metrics.RecordRollback(ok)
	return ok
}

func restoreBackup(backup, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("restoring %s: %s still exists", backup, dst)
	}
	if err := platform.Move(backup, dst); err != nil {
		return fmt.Errorf("restoring %s: %w", backup, err)
	}
	return nil
}
