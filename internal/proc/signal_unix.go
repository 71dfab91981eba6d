//go:build unix

// Package proc suspends and resumes child processes.
package proc

import (
	"os"
	"syscall"
)

// Suspend stops p until Resume is called.
func Suspend(p *os.Process) error { return p.Signal(syscall.SIGSTOP) }

func Resume(p *os.Process) error { return p.Signal(syscall.SIGCONT) }
