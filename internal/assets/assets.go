// Package assets serves the bundled HTML front page.
package assets

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"unicode/utf8"
)

// IndexFile is the name of the front page inside the bundled filesystem.
const IndexFile = "index.html"

var (
	ErrNotFound        = errors.New("assets: document not found")
	ErrInvalidEncoding = errors.New("assets: document is not valid UTF-8")
)

//go:embed static/index.html
var embedded embed.FS

// Bundled returns the filesystem compiled into the binary.
func Bundled() fs.FS {
	sub, err := fs.Sub(embedded, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Page is a single document read from fsys on first use and served from
// memory afterwards. A failed load is cached as well; it is a deployment
// defect, not something a later request can fix.
type Page struct {
	fsys fs.FS
	name string

	once sync.Once
	body []byte
	err  error
}

func NewPage(fsys fs.FS, name string) *Page {
	return &Page{fsys: fsys, name: name}
}

// Index returns the bundled front page.
func Index() *Page {
	return NewPage(Bundled(), IndexFile)
}

// Load returns the document bytes.
func (p *Page) Load() ([]byte, error) {
	p.once.Do(func() {
		p.body, p.err = read(p.fsys, p.name)
	})
	return p.body, p.err
}

func read(fsys fs.FS, name string) ([]byte, error) {
	if fsys == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("assets: read %s: %w", name, err)
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidEncoding, name)
	}
	return data, nil
}
