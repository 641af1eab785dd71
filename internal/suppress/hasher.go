package suppress

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Hasher returns the content hash of the code currently occupying a file
// line range. It is the collaborator suppressions use to detect that the
// suppressed code has changed.
type Hasher interface {
	Hash(path string, lineStart, lineEnd int) (string, error)
}

// FileHasher hashes line ranges of files under a repository root.
type FileHasher struct {
	Root string
}

// NewFileHasher creates a hasher rooted at the given directory.
func NewFileHasher(root string) *FileHasher {
	return &FileHasher{Root: root}
}

// Hash reads the file and returns the hex sha256 of lines
// [lineStart, lineEnd], trailing whitespace stripped per line so editor
// noise does not invalidate suppressions.
func (h *FileHasher) Hash(path string, lineStart, lineEnd int) (string, error) {
	data, err := os.ReadFile(filepath.Join(h.Root, path))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	if lineStart < 1 {
		lineStart = 1
	}
	if lineEnd > len(lines) {
		lineEnd = len(lines)
	}
	if lineStart > lineEnd {
		return "", fmt.Errorf("%s: range %d-%d out of bounds", path, lineStart, lineEnd)
	}

	return HashLines(lines[lineStart-1 : lineEnd]), nil
}

// HashLines returns the hex sha256 over the given lines, each stripped of
// trailing whitespace.
func HashLines(lines []string) string {
	sum := sha256.New()
	for _, line := range lines {
		sum.Write([]byte(strings.TrimRight(line, " \t\r")))
		sum.Write([]byte{'\n'})
	}
	return hex.EncodeToString(sum.Sum(nil))
}
