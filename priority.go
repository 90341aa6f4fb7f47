package armature

import "fmt"

// Priority ranks configuration sources. Higher overrides lower for the same
// key path; equal priorities resolve in favour of the later assignment.
type Priority int

const (
	DefaultConfiguration  Priority = -1 // Trait declaration defaults
	BootConfiguration     Priority = 0  // Command line and boot files
	PackageConfiguration  Priority = 5  // Per-package configuration files
	UserConfiguration     Priority = 10 // User overrides
	ExplicitConfiguration Priority = 15 // Programmatic assignments
)

func (p Priority) String() string {
	switch p {
	case DefaultConfiguration:
		return "default"
	case BootConfiguration:
		return "boot"
	case PackageConfiguration:
		return "package"
	case UserConfiguration:
		return "user"
	case ExplicitConfiguration:
		return "explicit"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}
