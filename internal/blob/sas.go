package blob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pingwatch/pingwatch/internal/config"
)

// SASSigner implements Azure Blob Shared-Key / SAS signing. The canonical
// string-to-sign layouts are Microsoft's fixed wire format, so this stays
// on crypto/hmac + crypto/sha256 rather than pulling in a full Azure SDK
// for one signing routine.
type SASSigner struct {
	cfg config.BlobConfig
	key []byte
}

func NewSASSigner(cfg config.BlobConfig) *SASSigner {
	key, _ := base64.StdEncoding.DecodeString(cfg.AccountKey)
	return &SASSigner{cfg: cfg, key: key}
}

// GenerateBlobUploadSAS builds a create+write SAS for blobName, returning
// the query string and its expiry.
func (s *SASSigner) GenerateBlobUploadSAS(blobName string, now time.Time) (string, time.Time) {
	expiry := now.Add(time.Duration(s.cfg.SASExpirySeconds) * time.Second)
	expiryStr := expiry.UTC().Format("2006-01-02T15:04:05Z")
	canonicalResource := fmt.Sprintf("/blob/%s/%s/%s", s.cfg.AccountName, s.cfg.Container, blobName)

	lines := []string{
		"cw",          // signed permissions: create+write
		"",            // signed start
		expiryStr,     // signed expiry
		canonicalResource,
		"",            // signed identifier
		"",            // signed IP
		s.cfg.SASProtocol,
		s.cfg.SASVersion,
		"b",           // signed resource: blob
		"",            // signed snapshot time
		"",            // signed encryption scope
		"",            // rscc
		"",            // rscd
		"",            // rsce
		"",            // rscl
		"",            // rsct
	}
	stringToSign := strings.Join(lines, "\n")
	sig := s.sign(stringToSign)

	q := &urlValues{}
	q.set("sv", s.cfg.SASVersion)
	q.set("se", expiryStr)
	q.set("sp", "cw")
	q.set("sr", "b")
	q.set("spr", s.cfg.SASProtocol)
	q.set("sig", sig)
	return q.encode(), expiry
}

// GenerateBlobReadSAS mirrors GenerateBlobUploadSAS with read-only
// permissions, used by the worker's cloud download path. A short-lived
// read SAS gives the worker fetch access to any blob in the container
// without a second signing routine.
func (s *SASSigner) GenerateBlobReadSAS(blobName string, now time.Time) (string, time.Time) {
	expiry := now.Add(time.Duration(s.cfg.SASExpirySeconds) * time.Second)
	expiryStr := expiry.UTC().Format("2006-01-02T15:04:05Z")
	canonicalResource := fmt.Sprintf("/blob/%s/%s/%s", s.cfg.AccountName, s.cfg.Container, blobName)

	lines := []string{
		"r",
		"",
		expiryStr,
		canonicalResource,
		"",
		"",
		s.cfg.SASProtocol,
		s.cfg.SASVersion,
		"b",
		"",
		"",
		"",
		"",
		"",
		"",
		"",
	}
	stringToSign := strings.Join(lines, "\n")
	sig := s.sign(stringToSign)

	q := &urlValues{}
	q.set("sv", s.cfg.SASVersion)
	q.set("se", expiryStr)
	q.set("sp", "r")
	q.set("sr", "b")
	q.set("spr", s.cfg.SASProtocol)
	q.set("sig", sig)
	return q.encode(), expiry
}

func (s *SASSigner) sign(stringToSign string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// EnsureContainerExists issues a Shared-Key-authenticated PUT with
// restype=container and Content-Length: 0. A 409 (container already
// exists) is treated as success.
func (s *SASSigner) EnsureContainerExists(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s?restype=container", s.cfg.Endpoint, s.cfg.Container)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("build container create request: %w", err)
	}
	req.ContentLength = 0

	now := time.Now().UTC().Format(http.TimeFormat)
	req.Header.Set("x-ms-date", now)
	req.Header.Set("x-ms-version", s.cfg.SASVersion)

	resourcePath := fmt.Sprintf("%s/%s", s.cfg.Container, "")
	authHeader := s.buildSharedKeyAuthorization(req, resourcePath, 0)
	req.Header.Set("Authorization", authHeader)

	client := &http.Client{Timeout: s.cfg.RequestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("create container: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// buildSharedKeyAuthorization builds the Shared Key header for container
// management requests. The critical detail: contentLength==0 produces an
// EMPTY 4th line, not "0".
func (s *SASSigner) buildSharedKeyAuthorization(req *http.Request, resourcePathWithQuery string, contentLength int64) string {
	contentLengthValue := ""
	if contentLength != 0 {
		contentLengthValue = fmt.Sprintf("%d", contentLength)
	}

	canonicalizedResource := fmt.Sprintf("/%s/%s\nrestype:container", s.cfg.AccountName, s.cfg.Container)

	lines := []string{
		req.Method,
		"",                  // Content-Encoding
		"",                  // Content-Language
		contentLengthValue,  // Content-Length
		"",                  // Content-MD5
		"",                  // Content-Type
		"",                  // Date
		"",                  // If-Modified-Since
		"",                  // If-Match
		"",                  // If-None-Match
		"",                  // If-Unmodified-Since
		"",                  // Range
		canonicalizedHeaders(req),
		canonicalizedResource,
	}
	stringToSign := strings.Join(lines, "\n")
	sig := s.sign(stringToSign)
	return fmt.Sprintf("SharedKey %s:%s", s.cfg.AccountName, sig)
}

func canonicalizedHeaders(req *http.Request) string {
	var parts []string
	for _, key := range []string{"x-ms-date", "x-ms-version"} {
		if v := req.Header.Get(key); v != "" {
			parts = append(parts, fmt.Sprintf("%s:%s", key, v))
		}
	}
	return strings.Join(parts, "\n")
}

// urlValues is a tiny ordered query-string builder: Azure's SAS consumers
// are tolerant of parameter order, and a deterministic insertion order
// keeps the output stable without needing net/url's alphabetical re-sort.
type urlValues struct {
	keys []string
	vals map[string]string
}

func (u *urlValues) set(key, val string) {
	if u.vals == nil {
		u.vals = map[string]string{}
	}
	if _, ok := u.vals[key]; !ok {
		u.keys = append(u.keys, key)
	}
	u.vals[key] = val
}

func (u urlValues) encode() string {
	var b strings.Builder
	for i, k := range u.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(escapeQueryValue(u.vals[k]))
	}
	return b.String()
}

func escapeQueryValue(v string) string {
	replacer := strings.NewReplacer(
		":", "%3A",
		"+", "%2B",
		" ", "%20",
	)
	return replacer.Replace(v)
}
