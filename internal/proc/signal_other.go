//go:build !unix

// Package proc suspends and resumes child processes.
package proc

import (
	"errors"
	"os"
)

func Suspend(*os.Process) error { return errors.ErrUnsupported }

func Resume(*os.Process) error { return errors.ErrUnsupported }
