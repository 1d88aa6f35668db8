package document

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	apperrors "github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/errors"
)

// MaxLineBytes bounds a single line, newline excluded. Longer lines fail the
// load with ErrPayloadTooLarge instead of being split silently.
const MaxLineBytes = 4 << 20

// Load reads r line by line, splits every line, registers its tokens and
// builds the Image. Read errors are returned before any Image exists.
func Load(name string, r io.Reader, registry *vocabulary.Registry, splitter tokenizer.Splitter) (*Image, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes+2)

	lines := make([][]vocabulary.ID, 0, 64)
	for scanner.Scan() {
		lines = append(lines, registry.RegisterAll(splitter.Split(scanner.Text())))
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, apperrors.Newf(apperrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge,
				"document %s has a line longer than %d bytes", name, MaxLineBytes)
		}
		return nil, fmt.Errorf("reading document %s: %w", name, err)
	}
	return New(name, lines), nil
}

// LoadFile loads the file at path; the image is named after its base name.
func LoadFile(path string, registry *vocabulary.Registry, splitter tokenizer.Splitter) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()
	return Load(filepath.Base(path), f, registry, splitter)
}
