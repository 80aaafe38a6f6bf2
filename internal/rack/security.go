package rack

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// PolicyFlag selects which integrity checks run before a candidate
// plugin file is trusted. Flags combine with bitwise or.
type PolicyFlag uint8

const (
	// CheckFileOwner requires the plugin file to be owned by the
	// policy's authorized UID.
	CheckFileOwner PolicyFlag = 1 << iota
	// CheckFileWritable rejects plugin files writable by group or
	// others.
	CheckFileWritable
	// CheckDirOwner requires the plugin's directory to be owned by
	// the authorized UID.
	CheckDirOwner
	// CheckDirWritable rejects plugin directories writable by group
	// or others.
	CheckDirWritable
)

// SecurityPolicy describes the ownership and writability constraints a
// plugin file and its parent directory must satisfy before the file is
// opened. The zero value accepts everything; checks are opt-in.
type SecurityPolicy struct {
	Flags    PolicyFlag
	OwnerUID int
}

// Accept reports whether path may be opened as a plugin candidate.
// The file is checked first, then its parent directory: a well-
// protected file inside a writable directory is still untrustworthy,
// since anyone could swap it for a sibling. Either failing rejects
// the candidate outright.
func (p SecurityPolicy) Accept(path string) bool {
	if p.Flags == 0 {
		return true
	}
	if !p.acceptPath(path, p.Flags&CheckFileOwner != 0, p.Flags&CheckFileWritable != 0) {
		return false
	}
	// Candidates must be named by qualified paths so there is a
	// parent directory to vet.
	if !strings.ContainsRune(path, filepath.Separator) {
		return false
	}
	return p.acceptDir(filepath.Dir(path))
}

// acceptDir vets a directory against the Dir* flags only. ScanDir
// uses it to test the directory once before walking its entries.
func (p SecurityPolicy) acceptDir(dir string) bool {
	return p.acceptPath(dir, p.Flags&CheckDirOwner != 0, p.Flags&CheckDirWritable != 0)
}

// acceptPath stats a single filesystem node. Any stat error is a
// rejection, never "unknown": the check fails closed.
func (p SecurityPolicy) acceptPath(path string, checkOwner, checkWritable bool) bool {
	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	if checkOwner && ownerUID(st) != p.OwnerUID {
		return false
	}
	if checkWritable && st.Mode().Perm()&0o022 != 0 {
		return false
	}
	return true
}

func ownerUID(st fs.FileInfo) int {
	if sys, ok := st.Sys().(*syscall.Stat_t); ok {
		return int(sys.Uid)
	}
	return -1
}
