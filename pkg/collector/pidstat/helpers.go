package pidstat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// procReadFile allows tests to stub reading /proc/PID/comm.
var procReadFile = os.ReadFile

func commForPID(pid int, cache map[int]string) string {
	if name, ok := cache[pid]; ok {
		return name
	}
	path := filepath.Join("/proc", strconv.Itoa(pid), "comm")
	data, err := procReadFile(path)
	if err != nil {
		name := fmt.Sprintf("pid-%d", pid)
		cache[pid] = name
		return name
	}
	comm := strings.TrimSpace(string(data))
	if comm == "" {
		comm = fmt.Sprintf("pid-%d", pid)
	}
	cache[pid] = comm
	return comm
}

// pfKthread is PF_KTHREAD from include/linux/sched.h.
const pfKthread = 0x00200000

// kernelThread reports whether /proc/PID/stat carries PF_KTHREAD or names kthreadd as parent.
// Unreadable or unparsable stat files read as user space.
func kernelThread(pid int) bool {
	data, err := procReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	// comm may contain spaces and parentheses; the fields after the last ')' are fixed.
	end := strings.LastIndexByte(string(data), ')')
	if end < 0 {
		return false
	}
	fields := strings.Fields(string(data[end+1:]))
	// state ppid pgrp session tty_nr tpgid flags
	if len(fields) < 7 {
		return false
	}
	if fields[1] == "2" {
		return true
	}
	flags, err := strconv.ParseUint(fields[6], 10, 64)
	if err != nil {
		return false
	}
	return flags&pfKthread != 0
}
