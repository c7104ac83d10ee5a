package proof

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format is a proof document encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFor picks the encoding from a file extension. Anything other than
// .json is TOML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatTOML
}

// Encode writes p to w.
func Encode(w io.Writer, p *Proof, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatTOML:
		enc := toml.NewEncoder(w)
		enc.Indent = ""
		return enc.Encode(p)
	default:
		return fmt.Errorf("unknown proof format %q", format)
	}
}

// Decode reads a proof from r.
func Decode(r io.Reader, format Format) (*Proof, error) {
	var p Proof
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode proof: %w", err)
		}
	case FormatTOML:
		if _, err := toml.NewDecoder(r).Decode(&p); err != nil {
			return nil, fmt.Errorf("failed to decode proof: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown proof format %q", format)
	}
	if p.Version != Version {
		return nil, fmt.Errorf("unsupported proof version %d", p.Version)
	}
	return &p, nil
}

// WriteFile encodes p by the extension of path. The proof is streamed into a
// temporary sibling and renamed over path, so an existing proof is only ever
// replaced by a complete one.
func WriteFile(path string, p *Proof) error {
	return replaceFile(path, 0o644, func(w io.Writer) error {
		return Encode(w, p, FormatFor(path))
	})
}

// ReadFile loads a proof written by WriteFile.
func ReadFile(path string) (*Proof, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatFor(path))
}

func replaceFile(path string, perm os.FileMode, write func(io.Writer) error) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to stage proof: %w", err)
	}
	staged := f.Name()
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(staged)
		}
	}()

	bw := bufio.NewWriter(f)
	if err = write(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", staged, err)
	}
	if err = f.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", staged, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync %s: %w", staged, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", staged, err)
	}
	if err = os.Rename(staged, path); err != nil {
		return fmt.Errorf("failed to move proof into place: %w", err)
	}
	return nil
}
