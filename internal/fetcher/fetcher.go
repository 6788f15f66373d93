// Package fetcher opens lead import files from local paths, HTTP(S) and FTP
// locations and parses CSV or XLSX sheets into header-keyed tables.
package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads a remote import file.
type Fetcher interface {
	// Download fetches the location and returns its body. The caller closes it.
	Download(ctx context.Context, location string) (io.ReadCloser, error)
}

// Format is an import file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Options configures Open and ReadTable.
type Options struct {
	HTTP Fetcher
	FTP  Fetcher
	// Format overrides detection from the location's extension.
	Format Format
	// Sheet selects an XLSX sheet by name; the first sheet is used when empty.
	Sheet string
}

func (o Options) withDefaults() Options {
	if o.HTTP == nil {
		o.HTTP = NewHTTPFetcher(HTTPOptions{})
	}
	if o.FTP == nil {
		o.FTP = NewFTPFetcher(FTPOptions{})
	}
	return o
}

// Open returns a reader for a local path or an http, https or ftp URL.
func Open(ctx context.Context, location string, opts Options) (io.ReadCloser, error) {
	opts = opts.withDefaults()
	switch scheme(location) {
	case "http", "https":
		return opts.HTTP.Download(ctx, location)
	case "ftp":
		return opts.FTP.Download(ctx, location)
	case "", "file":
		p := strings.TrimPrefix(location, "file://")
		f, err := os.Open(p)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: open %s", p)
		}
		return f, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported location %q", location)
	}
}

// ReadTable opens location and parses it as CSV or XLSX.
func ReadTable(ctx context.Context, location string, opts Options) (*Table, error) {
	format := opts.Format
	if format == "" {
		detected, err := DetectFormat(location)
		if err != nil {
			return nil, err
		}
		format = detected
	}

	rc, err := Open(ctx, location, opts)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	switch format {
	case FormatCSV:
		return ReadCSV(ctx, rc)
	case FormatXLSX:
		return ReadXLSX(rc, opts.Sheet)
	default:
		return nil, eris.Errorf("fetcher: unsupported format %q", format)
	}
}

// DetectFormat infers the file format from the location's extension.
func DetectFormat(location string) (Format, error) {
	p := location
	if u, err := url.Parse(location); err == nil && u.Scheme != "" {
		p = u.Path
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".csv", ".txt", ".tsv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("fetcher: cannot detect format of %q (use .csv or .xlsx)", location)
	}
}

func scheme(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}
