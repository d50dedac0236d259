package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingwatch/pingwatch/internal/config"
	"github.com/pingwatch/pingwatch/internal/pingerr"
)

func TestBuildBlobName(t *testing.T) {
	assert.Equal(t, "sessions/sess-1/events/evt-1.webm", BuildBlobName("sess-1", "evt-1", "video/webm"))
	assert.Equal(t, "sessions/sess-1/events/evt-1.mp4", BuildBlobName("sess-1", "evt-1", "video/mp4"))
	assert.Equal(t, "sessions/sess-1/events/evt-1", BuildBlobName("sess-1", "evt-1", "application/octet-stream"))
}

func TestGateway_RelayMode_WriteThenDownloadRoundtrips(t *testing.T) {
	gw := New(config.BlobConfig{LocalUploadDir: t.TempDir()})
	require.False(t, gw.CloudConfigured())

	target, err := gw.Initiate(context.Background(), "sess-1", "evt-1", "video/webm", "http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "relay", target.Mode)

	etag, err := gw.WriteRelay(target.BlobName, []byte("clip bytes"))
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	got, err := gw.Download(context.Background(), target.Container, target.BlobName)
	require.NoError(t, err)
	assert.Equal(t, []byte("clip bytes"), got)
}

// TestGateway_RelayMode_UploadURLMatchesRegisteredRoute guards against a
// relay UploadURL that points nowhere: it must route through the same
// PUT /events/{id}/upload pattern the API server registers, resolving to
// the event ID, not the (slash-containing) blob name.
func TestGateway_RelayMode_UploadURLMatchesRegisteredRoute(t *testing.T) {
	gw := New(config.BlobConfig{LocalUploadDir: t.TempDir()})

	target, err := gw.Initiate(context.Background(), "sess-1", "evt-1", "video/webm", "http://localhost:8080/")
	require.NoError(t, err)
	require.Equal(t, "relay", target.Mode)

	parsed, err := url.Parse(target.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "/events/evt-1/upload", parsed.Path)
	assert.NotContains(t, parsed.Path, target.BlobName)

	var gotID string
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /events/{id}/upload", func(w http.ResponseWriter, r *http.Request) {
		gotID = r.PathValue("id")
	})

	req := httptest.NewRequest(http.MethodPut, parsed.Path, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt-1", gotID)
}

func TestGateway_Download_MissingBlobReturnsNotFound(t *testing.T) {
	gw := New(config.BlobConfig{LocalUploadDir: t.TempDir()})
	_, err := gw.Download(context.Background(), "local", "sessions/sess-1/events/never-uploaded.webm")
	assert.Equal(t, pingerr.KindNotFound, pingerr.KindOf(err))
}

func TestLocalStore_RejectsPathTraversal(t *testing.T) {
	ls := NewLocalStore(t.TempDir())
	_, err := ls.Write("../../etc/passwd", []byte("pwned"))
	assert.Error(t, err)
}

func TestLocalStore_WriteReadRoundtrip(t *testing.T) {
	ls := NewLocalStore(t.TempDir())
	etag, err := ls.Write("sessions/s/events/e.webm", []byte("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, etag)

	data, err := ls.Read("sessions/s/events/e.webm")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}
