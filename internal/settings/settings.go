// Package settings holds long-lived values that are discovered at runtime and
// must survive a restart, such as the business account id resolved through
// the Graph API.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/atomicfile"
)

// BusinessAccountIDKey is the settings key of the Instagram business account
// linked to the Facebook page.
const BusinessAccountIDKey = "INSTAGRAM_BUSINESS_ACCOUNT_ID"

// Store reads settings and records derived values. Derived values never
// expire: they are only replaced by another derived write, by editing the
// underlying store, or by Forget.
type Store interface {
	Lookup(key string) (string, bool)
	SetDerived(key, value string) error
	Forget(key string) error
}

// File is a Store persisted as a dotenv file. The file is read on every
// lookup, so edits made by an operator or another process are seen without a
// restart.
//
// Seed values apply only to keys the file did not define when it was opened:
// a key defined by the file is owned by it, and removing it from the file
// removes it from the store.
//
// Writes touch only the line of the key being written. Other lines, comments
// included, are kept byte for byte.
type File struct {
	mu   sync.Mutex
	path string
	seed map[string]string
}

// OpenFile opens the dotenv file at path. A missing file is treated as empty
// and is created on the first write. Empty seed values are ignored.
func OpenFile(path string, seed map[string]string) (*File, error) {
	values, err := readFile(path)
	if err != nil {
		return nil, err
	}

	s := map[string]string{}
	for k, v := range seed {
		if _, inFile := values[k]; v != "" && !inFile {
			s[k] = v
		}
	}

	return &File{
		path: path,
		seed: s,
	}, nil
}

// Path returns the location of the settings file.
func (f *File) Path() string {
	return f.path
}

func (f *File) Lookup(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := readFile(f.path)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("settings file unreadable, using seed value")
		values = map[string]string{}
	}

	if v, ok := values[key]; ok && v != "" {
		return v, true
	}

	v, ok := f.seed[key]
	return v, ok
}

// SetDerived records value under key and persists the file.
func (f *File) SetDerived(key, value string) error {
	line := key + "=" + quote(value)
	return f.update(key, &line)
}

// Forget removes key from the file. The seed value, if any, is also dropped
// so that the value is discovered again.
func (f *File) Forget(key string) error {
	f.mu.Lock()
	delete(f.seed, key)
	f.mu.Unlock()

	return f.update(key, nil)
}

// update replaces the lines defining key with replacement, or removes them
// when replacement is nil. A missing key is appended.
func (f *File) update(key string, replacement *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	content, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not read settings file %s: %w", f.path, err)
	}

	var out bytes.Buffer
	written := false

	for _, line := range splitLines(content) {
		if !definesKey(line, key) {
			out.WriteString(line)
			out.WriteByte('\n')
			continue
		}

		if replacement != nil && !written {
			out.WriteString(*replacement)
			out.WriteByte('\n')
			written = true
		}
	}

	if replacement != nil && !written {
		out.WriteString(*replacement)
		out.WriteByte('\n')
	}

	if err := atomicfile.Write(f.path, out.Bytes(), 0o600); err != nil {
		return fmt.Errorf("could not write settings file: %w", err)
	}

	return nil
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return nil
	}
	return strings.Split(strings.TrimSuffix(string(content), "\n"), "\n")
}

// definesKey reports whether a single dotenv line assigns key. Lines godotenv
// cannot parse on their own, such as continuations of a multi-line value, are
// never matched.
func definesKey(line, key string) bool {
	if !strings.Contains(line, key) {
		return false
	}

	parsed, err := godotenv.Unmarshal(line)
	if err != nil {
		return false
	}

	_, ok := parsed[key]
	return ok
}

var plainValue = regexp.MustCompile(`^[A-Za-z0-9_.:/@+-]*$`)

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`)

func quote(value string) string {
	if plainValue.MatchString(value) {
		return value
	}
	return `"` + quoteEscaper.Replace(value) + `"`
}

func readFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read settings file %s: %w", path, err)
	}
	return values, nil
}

// Memory is an in-process Store. It is used where no settings file is
// configured, and in tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

func NewMemory(initial map[string]string) *Memory {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		if v != "" {
			values[k] = v
		}
	}
	return &Memory{values: values}
}

func (m *Memory) Lookup(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) SetDerived(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	m.writes++
	return nil
}

func (m *Memory) Forget(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Writes returns the number of derived values recorded.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.writes
}

var _ Store = (*File)(nil)
var _ Store = (*Memory)(nil)
