package collector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/posectl/internal/capture"
	"github.com/danmuck/posectl/internal/config"
	"github.com/fxamacker/cbor/v2"
)

// StoredSession is the persisted form of one accepted upload.
type StoredSession struct {
	User       string          `json:"user"`
	Label      string          `json:"label"`
	SessionID  string          `json:"session_id"`
	ReceivedAt time.Time       `json:"received_at"`
	Frames     []capture.Frame `json:"frames"`
}

// Store persists accepted sessions and returns the stored filename.
type Store interface {
	Save(s StoredSession) (string, error)
	Format() string
}

// FileStore writes one file per session under Dir. Re-uploading a session id
// overwrites the previous file.
type FileStore struct {
	Dir    string
	format string
}

func NewFileStore(dir, format string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("collector: storage dir required")
	}
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = config.FormatJSON
	case config.FormatJSON, config.FormatCBOR:
	default:
		return nil, fmt.Errorf("collector: unsupported storage format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("collector: create storage dir: %w", err)
	}
	return &FileStore{Dir: dir, format: format}, nil
}

func (s *FileStore) Format() string {
	return s.format
}

func (s *FileStore) Save(sess StoredSession) (string, error) {
	data, err := s.encode(sess)
	if err != nil {
		return "", fmt.Errorf("collector: encode session %q: %w", sess.SessionID, err)
	}
	name := SessionFilename(sess.SessionID, s.format)
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("collector: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("collector: write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("collector: close session file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		return "", fmt.Errorf("collector: commit session file: %w", err)
	}
	return name, nil
}

func (s *FileStore) encode(sess StoredSession) ([]byte, error) {
	if s.format == config.FormatCBOR {
		return cbor.Marshal(sess)
	}
	return json.MarshalIndent(sess, "", "  ")
}

// LoadSession reads a stored session file back, choosing the codec by extension.
func LoadSession(path string) (StoredSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return StoredSession{}, err
	}
	var out StoredSession
	if strings.HasSuffix(path, "."+config.FormatCBOR) {
		err = cbor.Unmarshal(data, &out)
	} else {
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return StoredSession{}, fmt.Errorf("collector: decode %s: %w", path, err)
	}
	return out, nil
}

// SessionFilename maps a session id to a safe file name.
func SessionFilename(sessionID, format string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(sessionID) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.TrimLeft(b.String(), ".")
	if name == "" {
		name = "session"
	}
	return name + "." + format
}
