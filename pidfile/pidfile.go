// Package pidfile implements the exclusive-create PID file contract of §6
// "Persisted state": a file containing the decimal process ID, created
// exclusively at startup and removed at clean exit.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
)

// ErrExists is returned by Create when path already exists, mapping to
// the §6 exit code 6 (PID exists).
var ErrExists = fmt.Errorf("pidfile: already exists")

// PIDFile is a created, not-yet-removed PID file.
type PIDFile struct {
	path string
}

// Create exclusively creates path and writes the current process's PID to
// it in decimal. Returns ErrExists if the file is already present.
func Create(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrExists
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		os.Remove(path)
		return nil, err
	}
	return &PIDFile{path: path}, nil
}

// Remove deletes the PID file. Safe to call once at clean exit.
func (p *PIDFile) Remove() error {
	return os.Remove(p.path)
}
