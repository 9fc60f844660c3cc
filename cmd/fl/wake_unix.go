//go:build !windows

package main

import (
	"os"
	"syscall"
)

func wakeSignal() os.Signal { return syscall.SIGUSR1 }
