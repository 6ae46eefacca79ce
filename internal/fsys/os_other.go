//go:build !unix

package fsys

import "io/fs"

// Device is not available on this platform and always returns 0.
func (OS) Device(string) (uint64, error) {
	return 0, nil
}

// IdentityOf is not available on this platform.
func IdentityOf(fs.FileInfo) Identity {
	return Identity{}
}
