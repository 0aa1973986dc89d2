//go:build !debug_quarry

package memutils

import "unsafe"

const (
	// PoisonEnabled reports whether freed memory is poisoned for
	// use-after-free detection. It is true only when the debug_quarry build
	// tag is present.
	PoisonEnabled = false
)

// PoisonRange fills length bytes at data with an easy-to-identify pattern.
// This method no-ops unless the debug_quarry build tag is present.
func PoisonRange(data unsafe.Pointer, length int) {
}

// CheckPoison verifies that the pattern written by PoisonRange is still
// present. It returns true if the range is intact and false otherwise.
// This method always returns true unless the debug_quarry build tag is present.
func CheckPoison(data unsafe.Pointer, length int) bool {
	return true
}

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_quarry build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugCheckPow2 will verify that the numerical value passed in is a power of two, and panics if it is not.
// This method no-ops unless the debug_quarry build tag is present.
func DebugCheckPow2[T Number](value T, name string) {
}
