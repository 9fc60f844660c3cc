//go:build windows

package main

import "os"

func wakeSignal() os.Signal { return nil }
