package oracle

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	http3 "github.com/quic-go/quic-go/http3"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

// maxModelSize bounds a downloaded model document.
const maxModelSize = 16 << 20

// Fetcher downloads model documents. The zero value is not usable; use
// NewFetcher or set Client.
type Fetcher struct {
	Client *http.Client
}

// NewFetcher returns a fetcher speaking HTTP/3. A nil tlsCfg uses the
// system roots.
func NewFetcher(tlsCfg *tls.Config, timeout time.Duration) *Fetcher {
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	tr := &http3.Transport{TLSClientConfig: tlsCfg}
	return &Fetcher{Client: &http.Client{Transport: tr, Timeout: timeout}}
}

// Close releases QUIC connections held by the transport.
func (f *Fetcher) Close() error {
	if tr, ok := f.Client.Transport.(*http3.Transport); ok {
		return tr.Close()
	}
	return nil
}

// Fetch downloads the model at rawURL, validates it and stores it under
// dir as <sha256>.json. When the last URL path segment is itself a
// digest the content must match it. It returns the stored path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dir string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("oracle: model url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oracle: fetch %s: %s", rawURL, resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModelSize+1))
	if err != nil {
		return "", fmt.Errorf("oracle: read %s: %w", rawURL, err)
	}
	if len(data) > maxModelSize {
		return "", fmt.Errorf("oracle: model at %s exceeds %d bytes", rawURL, maxModelSize)
	}
	sum := digest(data)
	base := path.Base(u.Path)
	if want := strings.TrimSuffix(base, path.Ext(base)); isDigest(want) && want != sum {
		return "", perrors.CacheCorrupt("oracle model "+rawURL, fmt.Errorf("content hashes to %s", sum))
	}
	if _, err := ParseModel(data); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", perrors.IOFailure("mkdir", dir, err)
	}
	dst := filepath.Join(dir, sum+".json")
	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return "", perrors.IOFailure("create", dir, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", perrors.IOFailure("write", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", perrors.IOFailure("close", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", perrors.IOFailure("rename", dst, err)
	}
	return dst, nil
}

// FetchModel downloads with a default HTTP/3 fetcher.
func FetchModel(ctx context.Context, rawURL, dir string) (string, error) {
	f := NewFetcher(nil, time.Minute)
	defer f.Close()
	return f.Fetch(ctx, rawURL, dir)
}
