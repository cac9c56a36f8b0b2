// Package attachments stores uploaded files on local disk and hands out the
// URL they can be fetched from.
package attachments

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/teris-io/shortid"
)

const (
	// RoutePrefix is where stored files are served from.
	RoutePrefix = "/uploads/"

	MaxUploadSize = 10 << 20
)

var ErrTooLarge = errors.New("file too large")

type DiskStore struct {
	dir        string
	publicURL  string
	generateId func() (string, error)
}

// NewDiskStore creates dir if needed. publicURL prefixes the returned
// retrieval URLs and may be empty for host-relative paths.
func NewDiskStore(dir, publicURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	return &DiskStore{
		dir:        dir,
		publicURL:  strings.TrimRight(publicURL, "/"),
		generateId: shortid.Generate,
	}, nil
}

// Save writes r under a fresh name that keeps the extension of filename and
// returns its retrieval URL. At most MaxUploadSize bytes are accepted.
func (d *DiskStore) Save(filename string, r io.Reader) (string, error) {
	id, err := d.generateId()
	if err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}

	name := id + sanitizeExt(filepath.Ext(filename))
	f, err := os.OpenFile(filepath.Join(d.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, MaxUploadSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > MaxUploadSize {
		err = fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, MaxUploadSize)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write file: %w", err)
	}

	return d.publicURL + RoutePrefix + name, nil
}

// Handler serves stored files below RoutePrefix.
func (d *DiskStore) Handler() http.Handler {
	return http.StripPrefix(RoutePrefix, http.FileServer(justFiles{http.Dir(d.dir)}))
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[min(1, len(ext)):] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// justFiles hides directory listings.
type justFiles struct {
	fs http.FileSystem
}

func (j justFiles) Open(name string) (http.File, error) {
	f, err := j.fs.Open(name)
	if err != nil {
		return nil, err
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if stat.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}

	return f, nil
}
