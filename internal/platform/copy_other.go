//go:build !linux

package platform

import "os"

var kernelCopies []kernelCopy

func reserve(*os.File, int64) {}

func unsupportedCopy(error) bool { return false }
