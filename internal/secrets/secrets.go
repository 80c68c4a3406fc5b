// Package secrets copies mounted secret files to the locations a plugin
// expects, as described by a bindings manifest.
//
// The manifest lives at <root>/bindings and holds NUL-separated entries of
// the form from=to, where from is relative to root and to is a destination
// path (relative paths resolve against the working directory, ~ against the
// user's home).
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ManifestName is the name of the bindings manifest inside the secrets root.
const ManifestName = "bindings"

// ErrMissingBinding is returned by Mount when a bound source file is absent.
var ErrMissingBinding = errors.New("binding source does not exist")

// Binding maps a mounted secret to its destination.
type Binding struct {
	From string // absolute source path under the secrets root
	To   string // absolute destination path
}

// Bindings parses the manifest under root. A missing manifest, or one that
// is a directory, yields no bindings.
func Bindings(root string) ([]Binding, error) {
	path := filepath.Join(root, ManifestName)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading bindings: %w", err)
	}
	if info.IsDir() {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bindings: %w", err)
	}
	return Parse(root, data)
}

// Parse decodes manifest data. Later entries for the same destination
// replace earlier ones. The result is sorted by destination.
func Parse(root string, data []byte) ([]Binding, error) {
	byDest := make(map[string]Binding)
	for _, entry := range bytes.Split(data, []byte{0}) {
		// Writers may end the manifest with a newline. Other whitespace
		// belongs to the paths.
		e := strings.TrimRight(string(entry), "\r\n")
		if e == "" {
			continue
		}
		from, to, ok := strings.Cut(e, "=")
		if !ok || from == "" || to == "" {
			return nil, fmt.Errorf("malformed binding %q", e)
		}
		dest, err := expand(to)
		if err != nil {
			return nil, err
		}
		byDest[dest] = Binding{From: filepath.Join(root, from), To: dest}
	}

	out := make([]Binding, 0, len(byDest))
	for _, b := range byDest {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].To < out[j].To })
	return out, nil
}

func expand(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding %q: %w", p, err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", p, err)
	}
	return abs, nil
}

// Mount copies every binding under root to its destination, creating parent
// directories as needed. It stops at the first failure.
func Mount(root string, log zerolog.Logger) ([]Binding, error) {
	bindings, err := Bindings(root)
	if err != nil {
		return nil, err
	}
	for _, b := range bindings {
		if _, err := os.Stat(b.From); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingBinding, b.From)
			}
			return nil, fmt.Errorf("checking %s: %w", b.From, err)
		}
		if err := copyFile(b.From, b.To); err != nil {
			return nil, err
		}
		log.Debug().Str("from", b.From).Str("to", b.To).Msg("secret mounted")
	}
	return bindings, nil
}

func copyFile(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(to), err)
	}
	src, err := os.Open(from)
	if err != nil {
		return fmt.Errorf("opening %s: %w", from, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", from, err)
	}
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", to, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("copying %s to %s: %w", from, to, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", to, err)
	}
	return nil
}
