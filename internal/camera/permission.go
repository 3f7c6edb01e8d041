package camera

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Permission decides whether the camera may be used.
type Permission interface {
	Check(ctx context.Context) error
}

// PermissionFunc adapts a function to Permission.
type PermissionFunc func(ctx context.Context) error

// Check calls f.
func (f PermissionFunc) Check(ctx context.Context) error { return f(ctx) }

var (
	// Granted always allows camera access.
	Granted Permission = PermissionFunc(func(context.Context) error { return nil })
	// Denied never allows camera access.
	Denied Permission = PermissionFunc(func(context.Context) error { return ErrPermissionDenied })
)

// PermissionFromString maps a config value to a Permission.
func PermissionFromString(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	default:
		return nil, fmt.Errorf("invalid camera permission %q (must be granted or denied)", s)
	}
}

// DevicePermission grants access when the device node can be opened for
// reading. Numeric device indexes map to /dev/videoN.
func DevicePermission(device string) Permission {
	return PermissionFunc(func(context.Context) error {
		path := DevicePath(device)
		f, err := os.Open(path) //nolint:gosec // G304: device path from config
		if err != nil {
			if os.IsPermission(err) {
				return fmt.Errorf("%w: %s", ErrPermissionDenied, path)
			}
			// Missing nodes are a bind problem, not a permission problem.
			return nil
		}
		return f.Close()
	})
}

// DevicePath returns the device node for a device index or path.
func DevicePath(device string) string {
	if device == "" {
		return "/dev/video0"
	}
	if strings.HasPrefix(device, "/") {
		return device
	}
	return "/dev/video" + device
}
