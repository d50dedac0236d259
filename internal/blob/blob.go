// Package blob provides the clip storage gateway: a cloud object-store
// backend reachable via pre-signed SAS URLs, and a local relay backend with
// path-traversal defense, selected per upload.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pingwatch/pingwatch/internal/pingerr"

	"github.com/pingwatch/pingwatch/internal/config"
)

// UploadTarget is what the API returns from upload/initiate.
type UploadTarget struct {
	Mode      string // "cloud" or "relay"
	Container string
	BlobName  string
	UploadURL string
	BlobURL   string
	ExpiresAt time.Time
}

type Gateway struct {
	cfg    config.BlobConfig
	signer *SASSigner
	local  *LocalStore
	http   *http.Client
}

func New(cfg config.BlobConfig) *Gateway {
	var signer *SASSigner
	if cfg.Endpoint != "" && cfg.AccountName != "" && cfg.AccountKey != "" {
		signer = NewSASSigner(cfg)
	}
	return &Gateway{
		cfg:    cfg,
		signer: signer,
		local:  NewLocalStore(cfg.LocalUploadDir),
		http:   &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// CloudConfigured reports whether cloud credentials are present at all;
// does not guarantee the container init call will succeed.
func (g *Gateway) CloudConfigured() bool {
	return g.signer != nil
}

// BuildBlobName derives the canonical blob path for a clip:
// sessions/{session}/events/{event}{ext}, ext from a tiny allowlist.
func BuildBlobName(sessionID, eventID, mimeType string) string {
	return fmt.Sprintf("sessions/%s/events/%s%s", sessionID, eventID, guessExtension(mimeType))
}

func guessExtension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "video/webm":
		return ".webm"
	case "video/mp4":
		return ".mp4"
	default:
		return ""
	}
}

// Initiate picks the upload backend: cloud preferred, relay fallback when
// cloud config is missing or container init fails at upload time.
func (g *Gateway) Initiate(ctx context.Context, sessionID, eventID, mimeType, relayBaseURL string) (*UploadTarget, error) {
	blobName := BuildBlobName(sessionID, eventID, mimeType)

	if g.CloudConfigured() {
		if g.cfg.AutoCreateContainer {
			if err := g.signer.EnsureContainerExists(ctx); err != nil {
				return g.relayTarget(blobName, eventID, relayBaseURL), nil
			}
		}
		query, expiresAt := g.signer.GenerateBlobUploadSAS(blobName, time.Now().UTC())
		uploadURL := fmt.Sprintf("%s/%s/%s?%s", g.cfg.Endpoint, g.cfg.Container, blobName, query)
		blobURL := fmt.Sprintf("%s/%s/%s", g.cfg.Endpoint, g.cfg.Container, blobName)
		return &UploadTarget{
			Mode:      "cloud",
			Container: g.cfg.Container,
			BlobName:  blobName,
			UploadURL: uploadURL,
			BlobURL:   blobURL,
			ExpiresAt: expiresAt,
		}, nil
	}

	return g.relayTarget(blobName, eventID, relayBaseURL), nil
}

// Download fetches clip bytes with cloud-then-local fallback: try the
// cloud container first when configured, fall back to the relay's local
// directory.
func (g *Gateway) Download(ctx context.Context, container, blobName string) ([]byte, error) {
	if g.CloudConfigured() && container != "local" {
		data, err := g.downloadCloud(ctx, blobName)
		if err == nil {
			return data, nil
		}
	}
	return g.local.Read(blobName)
}

func (g *Gateway) downloadCloud(ctx context.Context, blobName string) ([]byte, error) {
	query, _ := g.signer.GenerateBlobReadSAS(blobName, time.Now().UTC())
	url := fmt.Sprintf("%s/%s/%s?%s", g.cfg.Endpoint, g.cfg.Container, blobName, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, pingerr.Internal("build blob download request", err)
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return nil, pingerr.UpstreamUnavailable("blob download unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, pingerr.NotFound("blob not found in storage")
	}
	if resp.StatusCode >= 300 {
		return nil, pingerr.UpstreamUnavailable(fmt.Sprintf("blob download returned %d", resp.StatusCode), nil)
	}
	return io.ReadAll(resp.Body)
}

// WriteRelay writes relay-uploaded bytes to blobName under the local upload
// root, returning a strong ETag. Used by PUT /events/{id}/upload.
func (g *Gateway) WriteRelay(blobName string, data []byte) (string, error) {
	return g.local.Write(blobName, data)
}

// relayTarget builds the upload target for the local relay path. UploadURL
// must match the registered route PUT /events/{id}/upload, where {id} is the
// event ID, not the (slash-containing) blob name.
func (g *Gateway) relayTarget(blobName, eventID, relayBaseURL string) *UploadTarget {
	return &UploadTarget{
		Mode:      "relay",
		Container: "local",
		BlobName:  blobName,
		UploadURL: fmt.Sprintf("%s/events/%s/upload", strings.TrimSuffix(relayBaseURL, "/"), eventID),
		BlobURL:   "local://" + blobName,
		ExpiresAt: time.Now().UTC().Add(time.Duration(g.cfg.SASExpirySeconds) * time.Second),
	}
}
