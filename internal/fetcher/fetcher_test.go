package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	body string
	got  string
}

func (s *stubFetcher) Download(_ context.Context, location string) (io.ReadCloser, error) {
	s.got = location
	return io.NopCloser(strings.NewReader(s.body)), nil
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"leads.csv":                           FormatCSV,
		"/tmp/Export.XLSX":                    FormatXLSX,
		"https://example.com/a/leads.csv?x=1": FormatCSV,
		"ftp://host/out/leads.tsv":            FormatCSV,
	}
	for in, want := range tests {
		got, err := DetectFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := DetectFormat("leads.json")
	assert.Error(t, err)
}

func TestReadTable_LocalCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(path, []byte("email,tags\njane@acme.com,vip\n"), 0o644))

	tbl, err := ReadTable(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "vip", tbl.Records()[0]["tags"])

	_, err = ReadTable(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), Options{})
	assert.Error(t, err)
}

func TestReadTable_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("email\njane@acme.com\n"))
	}))
	defer srv.Close()

	tbl, err := ReadTable(context.Background(), srv.URL+"/export.csv", Options{HTTP: newTestFetcher()})
	require.NoError(t, err)
	assert.Len(t, tbl.Rows, 1)
}

func TestReadTable_FTPUsesFetcher(t *testing.T) {
	ftp := &stubFetcher{body: "email\njane@acme.com\n"}
	tbl, err := ReadTable(context.Background(), "ftp://drop.example.com/leads.csv", Options{FTP: ftp})
	require.NoError(t, err)
	assert.Equal(t, "ftp://drop.example.com/leads.csv", ftp.got)
	assert.Len(t, tbl.Rows, 1)
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open(context.Background(), "s3://bucket/leads.csv", Options{})
	assert.Error(t, err)
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "e_mail_address", NormalizeHeader(" E-mail Address "))
	assert.Equal(t, "linkedin_url", NormalizeHeader("LinkedIn URL"))
	assert.Equal(t, "sessions", NormalizeHeader("\ufeffSessions"))
	assert.Equal(t, "", NormalizeHeader(" # "))
}
