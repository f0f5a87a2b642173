// Package platform provides cross-platform filesystem operations used by the
// generation pipeline: permission bits that only apply on POSIX hosts, and a
// byte-exact recursive directory copy used for overwrite backups. Symlinks
// are recreated as symlinks; on Windows without developer mode the link
// target's content is copied instead.
package platform
