package ingest

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news_crawler/internal/assets"
	"news_crawler/internal/domain"
	"news_crawler/internal/fetcher"
)

type fakeDownloader struct {
	calls     int
	failFirst int
	resp      *fetcher.Response
}

func (d *fakeDownloader) Fetch(_ context.Context, _ string) (*fetcher.Response, error) {
	d.calls++
	if d.calls <= d.failFirst {
		return nil, &fetcher.StatusError{StatusCode: 503, URL: "x"}
	}
	return d.resp, nil
}

type fakeUploader struct {
	calls      int
	files      []assets.File
	err        error
	seenOnDisk []bool
}

func (u *fakeUploader) Upload(_ context.Context, f assets.File) (*domain.Asset, error) {
	u.calls++
	_, statErr := os.Stat(f.Path)
	u.seenOnDisk = append(u.seenOnDisk, statErr == nil)
	u.files = append(u.files, f)
	if u.err != nil {
		return nil, u.err
	}
	return &domain.Asset{ID: 42}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pngResponse() *fetcher.Response {
	return &fetcher.Response{Body: []byte("png-bytes"), ContentType: "image/png", StatusCode: 200}
}

func newIngestor(t *testing.T, d Downloader, u Uploader) (*ImageIngestor, string) {
	t.Helper()
	tmp := t.TempDir()
	return NewImageIngestor(d, u, Config{Attempts: 3, TempDir: tmp}, testLogger()), tmp
}

func assertNoTempLeft(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest_Success(t *testing.T) {
	d := &fakeDownloader{resp: pngResponse()}
	u := &fakeUploader{}
	ing, tmp := newIngestor(t, d, u)

	id, ok := ing.Ingest(context.Background(), "https://cdn.example.com/path/photo.png?w=300")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	require.Len(t, u.files, 1)
	assert.Equal(t, "photo.png", u.files[0].Name)
	assert.Equal(t, "image/png", u.files[0].ContentType)
	assert.Equal(t, int64(len("png-bytes")), u.files[0].Size)
	assert.True(t, u.seenOnDisk[0])
	assertNoTempLeft(t, tmp)
}

func TestIngest_EmptyCandidate(t *testing.T) {
	d := &fakeDownloader{resp: pngResponse()}
	ing, _ := newIngestor(t, d, &fakeUploader{})

	_, ok := ing.Ingest(context.Background(), "  ")
	assert.False(t, ok)
	assert.Zero(t, d.calls)
}

func TestIngest_MalformedURL(t *testing.T) {
	d := &fakeDownloader{resp: pngResponse()}
	ing, _ := newIngestor(t, d, &fakeUploader{})

	for _, raw := range []string{"://bad", "ftp://host/a.png", "/relative.png"} {
		_, ok := ing.Ingest(context.Background(), raw)
		assert.False(t, ok, raw)
	}
	assert.Zero(t, d.calls)
}

func TestIngest_RetriesDownloadFailures(t *testing.T) {
	d := &fakeDownloader{failFirst: 2, resp: pngResponse()}
	u := &fakeUploader{}
	ing, tmp := newIngestor(t, d, u)

	id, ok := ing.Ingest(context.Background(), "https://cdn.example.com/a.png")
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, 1, u.calls)
	assertNoTempLeft(t, tmp)
}

func TestIngest_UploadErrorsAreRetriedThenGiveUp(t *testing.T) {
	d := &fakeDownloader{resp: pngResponse()}
	u := &fakeUploader{err: errors.New("storage unavailable")}
	ing, tmp := newIngestor(t, d, u)

	_, ok := ing.Ingest(context.Background(), "https://cdn.example.com/a.png")
	assert.False(t, ok)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, 3, u.calls)
	assertNoTempLeft(t, tmp)
}

func TestIngest_RejectsNonImage(t *testing.T) {
	d := &fakeDownloader{resp: &fetcher.Response{Body: []byte("<html>"), ContentType: "text/html; charset=utf-8"}}
	u := &fakeUploader{}
	ing, tmp := newIngestor(t, d, u)

	_, ok := ing.Ingest(context.Background(), "https://example.com/page")
	assert.False(t, ok)
	assert.Zero(t, u.calls)
	assertNoTempLeft(t, tmp)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		raw         string
		contentType string
		want        string
	}{
		{raw: "https://x/a/b/photo.jpg", contentType: "image/jpeg", want: "photo.jpg"},
		{raw: "https://x/a/ảnh đẹp (1).png", contentType: "image/png", want: "nh_p_1_.png"},
		{raw: "https://x/", contentType: "image/png", want: "image.png"},
		{raw: "https://x/thumb", contentType: "image/png", want: "thumb.png"},
		{raw: "https://x/..%2F..%2Fetc%2Fpasswd", contentType: "image/png", want: "passwd.png"},
	}

	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, FileName(u, tt.contentType), tt.raw)
	}
}
