package project

import (
	"fmt"
	"strings"
)

// PackageManager selects the tool used to install a generated project's
// dependencies.
type PackageManager string

const (
	PackageManagerNone PackageManager = "none"
	PackageManagerNPM  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerPNPM PackageManager = "pnpm"
)

// PackageManagers lists the accepted values in display order.
var PackageManagers = []PackageManager{
	PackageManagerNPM,
	PackageManagerYarn,
	PackageManagerPNPM,
	PackageManagerNone,
}

// ParsePackageManager maps a flag or config value to a PackageManager. The
// empty string maps to npm.
func ParsePackageManager(s string) (PackageManager, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "npm":
		return PackageManagerNPM, nil
	case "yarn":
		return PackageManagerYarn, nil
	case "pnpm":
		return PackageManagerPNPM, nil
	case "none", "skip":
		return PackageManagerNone, nil
	}
	return "", fmt.Errorf("unknown package manager %q (expected npm, yarn, pnpm or none)", s)
}

// Valid reports whether pm is one of the known managers.
func (pm PackageManager) Valid() bool {
	for _, known := range PackageManagers {
		if pm == known {
			return true
		}
	}
	return false
}

// InstallCommand returns the program and arguments that install
// dependencies. ok is false for PackageManagerNone.
func (pm PackageManager) InstallCommand() (name string, args []string, ok bool) {
	switch pm {
	case PackageManagerNPM, PackageManagerYarn, PackageManagerPNPM:
		return string(pm), []string{"install"}, true
	}
	return "", nil, false
}

func (pm PackageManager) String() string {
	return string(pm)
}
