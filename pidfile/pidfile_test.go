package pidfile

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestCreateWritesPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atscd.pid")
	pf, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file contents = %q, want %q", data, strconv.Itoa(os.Getpid()))
	}
	if err := pf.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("pid file still exists after Remove")
	}
}

func TestCreateRejectsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atscd.pid")
	pf, err := Create(path)
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	defer pf.Remove()

	if _, err := Create(path); err != ErrExists {
		t.Fatalf("second Create = %v, want ErrExists", err)
	}
}
