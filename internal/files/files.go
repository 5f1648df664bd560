// Package files fetches invoice documents by URL and archives processed
// uploads under a storage root.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	neturl "net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// maxFileSize caps downloads; invoices larger than this are rejected.
const maxFileSize = 20 << 20

// FetchError reports a non-2xx response from an http(s) source.
type FetchError struct {
	URL    string
	Status string
}

func (e *FetchError) Error() string {
	return "Could not fetch file from URL: " + e.Status
}

// File is a downloaded document.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// ErrNotAllowed is returned for sources a user may not read.
var ErrNotAllowed = errors.New("only http(s) URLs or files in your upload folder can be fetched")

// Fetcher downloads documents. http and https go through the HTTP client so
// the response status and content type are available. Other schemes
// (file://, mem://, s3://, gs://) go through afs, and only below
// <root>/<userID>/ for one of the configured roots.
type Fetcher struct {
	client *http.Client
	fs     afs.Service
	roots  []*neturl.URL
}

// NewFetcher returns a Fetcher. roots are storage URLs as accepted by
// NewArchive; empty or unresolvable roots are skipped.
func NewFetcher(client *http.Client, roots ...string) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{client: client, fs: afs.New()}
	for _, r := range roots {
		resolved, err := resolveRoot(r)
		if err != nil {
			continue
		}
		if u, err := neturl.Parse(resolved); err == nil {
			f.roots = append(f.roots, u)
		}
	}
	return f
}

// Fetch downloads rawURL on behalf of userID.
func (f *Fetcher) Fetch(ctx context.Context, userID, rawURL, name string) (*File, error) {
	if name == "" {
		name = path.Base(strings.SplitN(rawURL, "?", 2)[0])
	}
	scheme := url.Scheme(rawURL, "")
	if scheme == "http" || scheme == "https" {
		return f.fetchHTTP(ctx, rawURL, name)
	}

	src, ok := f.userSource(userID, rawURL)
	if !ok {
		return nil, ErrNotAllowed
	}
	data, err := f.fs.DownloadWithURL(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", name, maxFileSize)
	}
	return &File{Name: name, ContentType: DetectType(name, data), Data: data}, nil
}

// userSource returns the cleaned form of rawURL when it lies inside
// userID's folder under a configured root.
func (f *Fetcher) userSource(userID, rawURL string) (string, bool) {
	if userID == "" || strings.ContainsAny(userID, `/\`) || userID == "." || userID == ".." {
		return "", false
	}
	u, err := neturl.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "", false
	}
	clean := path.Clean(u.Path)
	for _, root := range f.roots {
		if u.Scheme != root.Scheme || u.Host != root.Host {
			continue
		}
		prefix := strings.TrimSuffix(path.Clean(root.Path), "/") + "/" + userID + "/"
		if strings.HasPrefix(clean, prefix) && len(clean) > len(prefix) {
			return u.Scheme + "://" + u.Host + clean, true
		}
	}
	return "", false
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, name string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: rawURL, Status: resp.Status}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file %s exceeds %d bytes", name, maxFileSize)
	}

	ct := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
		ct = mt
	} else {
		ct = DetectType(name, data)
	}
	return &File{Name: name, ContentType: ct, Data: data}, nil
}

// DetectType guesses a MIME type from the file extension, falling back to
// content sniffing.
func DetectType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		t, _, _ = strings.Cut(t, ";")
		return t
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return "application/pdf"
	}
	t, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return t
}

// Archive stores copies of processed files under a root URL.
type Archive struct {
	root string
	fs   afs.Service
}

// NewArchive accepts any afs URL. Plain or relative paths, including
// file://./dir, are resolved against the working directory.
func NewArchive(root string) (*Archive, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	return &Archive{root: root, fs: afs.New()}, nil
}

func resolveRoot(root string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("storage root is empty")
	}
	local := strings.TrimPrefix(root, "file://")
	if !strings.Contains(local, "://") && !filepath.IsAbs(local) {
		abs, err := filepath.Abs(local)
		if err != nil {
			return "", fmt.Errorf("resolving storage root: %w", err)
		}
		root = "file://" + abs
	} else if !strings.Contains(root, "://") {
		root = "file://" + root
	}
	return strings.TrimRight(root, "/"), nil
}

// Put writes data to <root>/<userID>/<id>-<name> and returns the URL.
func (a *Archive) Put(ctx context.Context, userID, id, name string, data []byte) (string, error) {
	dest := url.Join(a.root, userID+"/"+id+"-"+path.Base(name))
	if url.Scheme(dest, file.Scheme) == file.Scheme {
		parent, _ := url.Split(dest, file.Scheme)
		ok, err := a.fs.Exists(ctx, parent)
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", parent, err)
		}
		if !ok {
			if err := a.fs.Create(ctx, parent, file.DefaultDirOsMode, true); err != nil {
				return "", fmt.Errorf("creating %s: %w", parent, err)
			}
		}
	}
	if err := a.fs.Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("archiving %s: %w", name, err)
	}
	return dest, nil
}
