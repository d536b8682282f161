package meta

// Loader identifies one of the built-in class-loading contexts.
// Custom (user-defined) loaders are tracked but never participate in
// preloading or archiving decisions.
type Loader uint8

const (
	BootLoader Loader = iota
	PlatformLoader
	AppLoader
	CustomLoader
)

func (l Loader) String() string {
	switch l {
	case BootLoader:
		return "boot"
	case PlatformLoader:
		return "platform"
	case AppLoader:
		return "app"
	default:
		return "custom"
	}
}

// ParseLoader maps a loader name from a snapshot or archive back to its
// category. Unknown names are treated as custom loaders.
func ParseLoader(s string) Loader {
	switch s {
	case "boot", "bootstrap", "":
		return BootLoader
	case "platform", "ext":
		return PlatformLoader
	case "app", "system":
		return AppLoader
	default:
		return CustomLoader
	}
}

// BuiltinLoaders are the categories eligible for preloading, in the order
// the runtime preload driver replays them.
var BuiltinLoaders = []Loader{BootLoader, PlatformLoader, AppLoader}

// IsBuiltin reports whether the loader is one of boot/platform/app.
func (l Loader) IsBuiltin() bool {
	return l == BootLoader || l == PlatformLoader || l == AppLoader
}

// Parent returns the loader this category delegates to, and false for the
// boot loader which has no parent.
func (l Loader) Parent() (Loader, bool) {
	switch l {
	case AppLoader:
		return PlatformLoader, true
	case PlatformLoader:
		return BootLoader, true
	default:
		return 0, false
	}
}
