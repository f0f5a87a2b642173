package dnaerr

// Stable error codes. Codes are part of the CLI's user-visible contract and
// key the recovery engine's retry counters, so never rename one.
const (
	// Validation errors.

	// CodeInvalidProjectName indicates the project name is not a valid identifier.
	CodeInvalidProjectName = "INVALID_PROJECT_NAME"

	// CodeInvalidOutputPath indicates the output path is relative or contains traversal.
	CodeInvalidOutputPath = "INVALID_OUTPUT_PATH"

	// CodeDuplicateModule indicates a module id was requested more than once.
	CodeDuplicateModule = "DUPLICATE_MODULE"

	// CodeInvalidConfig indicates a project configuration field failed validation.
	CodeInvalidConfig = "INVALID_CONFIG"

	// CodeValidationError is the fallback for unclassified failures.
	CodeValidationError = "VALIDATION_ERROR"

	// Template errors.

	// CodeTemplateNotFound indicates the requested template id is not registered.
	CodeTemplateNotFound = "TEMPLATE_NOT_FOUND"

	// CodeTemplateValidationFailed indicates the renderer rejected the request.
	CodeTemplateValidationFailed = "TEMPLATE_VALIDATION_FAILED"

	// CodeFrameworkMismatch indicates the template targets a different framework.
	CodeFrameworkMismatch = "FRAMEWORK_MISMATCH"

	// Filesystem errors.

	// CodeDirectoryExists indicates the output directory exists and overwrite is off.
	CodeDirectoryExists = "DIRECTORY_EXISTS"

	// CodeFileNotFound indicates a path that was expected to exist does not.
	CodeFileNotFound = "FILE_NOT_FOUND"

	// CodeParentNotFound indicates the output path's parent directory is missing.
	CodeParentNotFound = "PARENT_NOT_FOUND"

	// CodePermissionDenied indicates the process lacks access to a path.
	CodePermissionDenied = "PERMISSION_DENIED"

	// CodeFileExists indicates a path that must be created already exists.
	CodeFileExists = "FILE_EXISTS"

	// CodeBackupFailed indicates the pre-overwrite backup could not be created.
	CodeBackupFailed = "BACKUP_FAILED"

	// CodeDiskFull indicates a write failed because the device is full.
	CodeDiskFull = "DISK_FULL"

	// CodeFilesystemError is the fallback for other I/O failures.
	CodeFilesystemError = "FILESYSTEM_ERROR"

	// Network errors.

	// CodeNetworkError indicates a connection-level failure.
	CodeNetworkError = "NETWORK_ERROR"

	// Dependency errors.

	// CodeDependencyError indicates the package manager install failed.
	CodeDependencyError = "DEPENDENCY_ERROR"

	// CodePackageManagerNotFound indicates the package manager binary is not on PATH.
	CodePackageManagerNotFound = "PACKAGE_MANAGER_NOT_FOUND"

	// System errors.

	// CodeInsufficientResources indicates the host lacks the disk space a template needs.
	CodeInsufficientResources = "INSUFFICIENT_RESOURCES"

	// CodeVCSInitFailed indicates version control initialization failed.
	CodeVCSInitFailed = "VCS_INIT_FAILED"

	// CodeTimeout indicates the caller's deadline expired during a stage.
	CodeTimeout = "TIMEOUT"

	// CodeCanceled indicates the caller canceled the run.
	CodeCanceled = "CANCELED"

	// CodeCommandFailed indicates a subprocess exited non-zero.
	CodeCommandFailed = "COMMAND_FAILED"

	// Configuration errors.

	// CodeConfigurationError indicates the project manifest could not be written.
	CodeConfigurationError = "CONFIGURATION_ERROR"

	// CodeIncompatibleToolVersion indicates the template requires another tool version.
	CodeIncompatibleToolVersion = "INCOMPATIBLE_TOOL_VERSION"

	// Rollback errors.

	// CodeRollbackFailed indicates cleanup after a fatal failure did not complete.
	CodeRollbackFailed = "ROLLBACK_FAILED"

	// Security errors.

	// CodePathTraversal indicates a generated path escaped the output directory.
	CodePathTraversal = "PATH_TRAVERSAL"
)
