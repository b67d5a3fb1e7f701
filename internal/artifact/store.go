package artifact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/portalcapture/internal/model"
)

var (
	// ErrInvalidIdentity is returned when an identity cannot form a file name.
	ErrInvalidIdentity = errors.New("identity cannot be used as an artifact name")

	// ErrInvalidKind is returned for an artifact kind that is not file name safe.
	ErrInvalidKind = errors.New("invalid artifact kind")

	// ErrEmptyArtifact is returned when asked to store zero bytes.
	ErrEmptyArtifact = errors.New("artifact is empty")
)

// fileExt is the extension of every stored artifact.
const fileExt = ".png"

// Store writes artifacts into a single directory.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.dir
}

// PathFor returns the deterministic path for identity and kind.
func (s *Store) PathFor(identity string, kind model.ArtifactKind) (string, error) {
	name, err := sanitizeIdentity(identity)
	if err != nil {
		return "", err
	}
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return filepath.Join(s.dir, name+"_"+string(kind)+fileExt), nil
}

// Write stores data at path, replacing any existing file.
// path must be inside the storage directory.
func (s *Store) Write(path string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyArtifact
	}
	if filepath.Dir(filepath.Clean(path)) != filepath.Clean(s.dir) {
		return fmt.Errorf("artifact path %q is outside %q", path, s.dir)
	}

	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".capture-*"+fileExt)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close() //nolint:errcheck // write error takes precedence
		return fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close() //nolint:errcheck // sync error takes precedence
		return fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set artifact permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move artifact into place: %w", err)
	}
	return nil
}

// Save writes the artifact to its TargetPath and fills in Digest.
func (s *Store) Save(a *model.CaptureArtifact) error {
	if err := s.Write(a.TargetPath, a.Data); err != nil {
		return err
	}
	a.Digest = Digest(a.Data)
	return nil
}

// Remove deletes the artifact at path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

// Exists reports whether a non-empty artifact is present at path.
func (s *Store) Exists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Open opens the artifact at path for reading.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	return f, nil
}

// Digest returns the hex encoded SHA3-256 of data.
func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// maxNameLen keeps encoded names well below common file name limits.
const maxNameLen = 200

// sanitizeIdentity maps an identity onto a single path element.
// Lowercase letters, digits and '-' are kept; every other byte, '_' and
// uppercase letters included, is written as '_' followed by two uppercase
// hex digits. The mapping is reversible, so distinct identities never share
// a file, also on case-insensitive file systems.
func sanitizeIdentity(identity string) (string, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return "", ErrInvalidIdentity
	}

	var sb strings.Builder
	sb.Grow(len(identity))
	for i := 0; i < len(identity); i++ {
		b := identity[i]
		switch {
		case b >= 'a' && b <= 'z', b >= '0' && b <= '9', b == '-':
			sb.WriteByte(b)
		default:
			fmt.Fprintf(&sb, "_%02X", b)
		}
	}
	if sb.Len() > maxNameLen {
		return "", fmt.Errorf("%w: %q is too long", ErrInvalidIdentity, identity)
	}
	return sb.String(), nil
}
