package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	pepperMu   sync.Mutex
	pepper     string
	pepperPath = "pepper"
)

// SetPepperPath changes where the pepper is read from and forgets any
// pepper already loaded.
func SetPepperPath(path string) {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	pepperPath = path
	pepper = ""
}

// LoadPepper reads the pepper file, generating and persisting a new random
// pepper when the file does not exist yet.
func LoadPepper() error {
	_, err := currentPepper()
	return err
}

func currentPepper() (string, error) {
	pepperMu.Lock()
	defer pepperMu.Unlock()

	if pepper != "" {
		return pepper, nil
	}

	p, err := loadOrGeneratePepper(filepath.Clean(pepperPath))
	if err != nil {
		return "", fmt.Errorf("cryptox: pepper: %w", err)
	}
	pepper = p
	return pepper, nil
}

func loadOrGeneratePepper(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(raw)), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}

	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	p := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(p), 0o600); err != nil {
		return "", err
	}
	return p, nil
}
