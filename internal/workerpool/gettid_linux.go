//go:build linux

package workerpool

import "golang.org/x/sys/unix"

func platformGettid() (int, bool) {
	return unix.Gettid(), true
}
