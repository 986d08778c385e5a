// Package filemode defines the handful of git tree-entry modes that
// modules/git uses when decoding tree objects.
package filemode

import (
	"encoding/json"
	"fmt"
	"os"
)

// FileMode mirrors the mode bits git stores for a tree entry. It is not a
// full POSIX mode: git only distinguishes the handful of values below.
type FileMode uint32

const (
	Empty      FileMode = 0
	Dir        FileMode = 0040000
	Regular    FileMode = 0100644
	Deprecated FileMode = 0100664
	Executable FileMode = 0100755
	Symlink    FileMode = 0120000
	Submodule  FileMode = 0160000

	// Fragments isolates the low bits git permits to vary on a regular
	// file (its actual POSIX permission bits) from the type bits above.
	Fragments FileMode = 0000777
)

// New parses the octal mode string as reported by `git ls-tree`/`cat-file`.
func New(s string) (FileMode, error) {
	var n uint32
	if _, err := fmt.Sscanf(s, "%o", &n); err != nil {
		return 0, fmt.Errorf("invalid file mode %q: %w", s, err)
	}
	return FileMode(n), nil
}

func (m FileMode) String() string {
	return fmt.Sprintf("%06o", uint32(m))
}

func (m FileMode) IsRegular() bool {
	return m&0170000 == Regular&0170000 && m&Fragments&0111 == 0
}

func (m FileMode) IsExecutable() bool {
	return m&0170000 == Regular&0170000 && m&Fragments&0111 != 0
}

func (m FileMode) IsDir() bool {
	return m&0170000 == Dir
}

func (m FileMode) IsSymlink() bool {
	return m&0170000 == Symlink
}

func (m FileMode) IsSubmodule() bool {
	return m&0170000 == Submodule
}

// ToOSFileMode converts to the closest os.FileMode, for callers that need to
// recreate a working-tree entry (e.g. writing a spilled blob back out).
func (m FileMode) ToOSFileMode() (os.FileMode, error) {
	switch {
	case m.IsDir():
		return os.ModeDir | 0755, nil
	case m.IsSymlink():
		return os.ModeSymlink | 0777, nil
	case m.IsSubmodule():
		return os.ModeDir | os.ModeIrregular | 0755, nil
	case m.IsExecutable():
		return 0755, nil
	case m.IsRegular():
		return 0644, nil
	default:
		return 0, fmt.Errorf("unsupported file mode: %s", m)
	}
}

func (m FileMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *FileMode) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := New(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}
