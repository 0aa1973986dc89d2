package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// MappingFailedError is the error wrapped by the mapping layer when the operating system refuses to create
// or reclaim an anonymous mapping
var MappingFailedError error = errors.New("anonymous mapping syscall failed")
