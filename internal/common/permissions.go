package common

// File permissions for files starflow writes.
const (
	// FilePermissionSecure is for profiles that may hold credentials.
	FilePermissionSecure = 0600

	// FilePermissionNormal is for lake output and exported settings.
	FilePermissionNormal = 0644

	DirPermissionSecure = 0700
	DirPermissionNormal = 0755
)
