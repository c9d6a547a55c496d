package oracle

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	http3 "github.com/quic-go/quic-go/http3"

	perrors "github.com/pyrite-lang/pyrite/internal/errors"
)

func TestDefaultModelLoads(t *testing.T) {
	m := DefaultModel()
	if m.Version != "1.0.0" || len(m.Entries) == 0 {
		t.Fatalf("model = %s", spew.Sdump(m))
	}
}

func TestSuggestPrefersCodeAndKeywords(t *testing.T) {
	o := New(DefaultModel())
	got := o.Suggest("E0382", "borrow of moved value: `s`", 3)
	if len(got) == 0 || got[0].ID != "moved-value-clone" {
		t.Fatalf("suggestions = %s", spew.Sdump(got))
	}

	got = o.Suggest("E0308", "mismatched types: expected `&str`, found `String`", 5)
	if len(got) < 2 || got[0].ID != "str-string-mismatch" || got[1].ID != "slice-vec-mismatch" {
		t.Fatalf("E0308 ranking = %s", spew.Sdump(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Fatalf("not sorted: %s", spew.Sdump(got))
		}
	}
}

func TestSuggestIsDeterministicAndBounded(t *testing.T) {
	o := New(DefaultModel())
	a := o.Suggest("E0308", "mismatched types", 1)
	b := o.Suggest("E0308", "mismatched types", 1)
	if len(a) != 1 || spew.Sdump(a) != spew.Sdump(b) {
		t.Fatalf("a = %v, b = %v", a, b)
	}
	if got := o.Suggest("E9999", "nothing here", 5); len(got) != 0 {
		t.Fatalf("unknown code matched %v", got)
	}
	if got := o.Suggest("E0308", "x", 0); got != nil {
		t.Fatalf("k=0 returned %v", got)
	}
}

func TestSuggestTiesBreakByID(t *testing.T) {
	m := &Model{Version: "1.0.0", Entries: []Entry{
		{ID: "b", Codes: []string{"E1"}, Weight: 0.5, Fix: Fix{Kind: FixManual}},
		{ID: "a", Codes: []string{"E1"}, Weight: 0.5, Fix: Fix{Kind: FixManual}},
		{ID: "generic", Weight: 0.5, Fix: Fix{Kind: FixManual}},
	}}
	got := New(m).Suggest("E1", "", 3)
	if len(got) != 3 || got[0].ID != "a" || got[1].ID != "b" || got[2].ID != "generic" {
		t.Fatalf("order = %s", spew.Sdump(got))
	}
}

func TestResolvePlaceholders(t *testing.T) {
	o := New(DefaultModel())
	s := o.Suggest("E0382", "use of moved value: `name`", 1)[0]
	r, ok := s.Resolve(map[string]string{"name": "name", "function": "greet"})
	if !ok || r.Fix.Target != "greet.name" || !strings.Contains(r.Template, "`greet`") {
		t.Fatalf("resolved = %+v, %v", r, ok)
	}
	if _, ok := s.Resolve(map[string]string{"name": "name"}); ok {
		t.Fatal("missing function resolved")
	}
	if s.Fix.Target != "{function}.{name}" {
		t.Fatal("Resolve mutated the receiver")
	}
}

func TestParseModelRejects(t *testing.T) {
	cases := map[string]string{
		"version":   `{"version":"2.0.0","entries":[]}`,
		"semver":    `{"version":"latest","entries":[]}`,
		"duplicate": `{"version":"1.0.0","entries":[{"id":"x","weight":0.1},{"id":"x","weight":0.1}]}`,
		"weight":    `{"version":"1.0.0","entries":[{"id":"x","weight":1.5}]}`,
		"json":      `{`,
	}
	for name, doc := range cases {
		if _, err := ParseModel([]byte(doc)); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
	_, err := ParseModel([]byte(cases["version"]))
	if !errors.Is(err, perrors.ErrVersionMismatch) {
		t.Fatalf("version err = %v", err)
	}
}

func TestLoadModelVerifiesDigestName(t *testing.T) {
	dir := t.TempDir()
	doc := []byte(`{"version":"1.0.0","entries":[]}`)
	good := filepath.Join(dir, digest(doc)+".json")
	if err := os.WriteFile(good, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(good); err != nil {
		t.Fatalf("LoadModel: %v", err)
	}
	bad := filepath.Join(dir, strings.Repeat("0", 64)+".json")
	if err := os.WriteFile(bad, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(bad); !errors.Is(err, perrors.ErrCacheCorrupt) {
		t.Fatalf("bad digest err = %v", err)
	}
	plain := filepath.Join(dir, "custom.json")
	if err := os.WriteFile(plain, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(plain); err != nil {
		t.Fatalf("plain name: %v", err)
	}
}

func TestMergeOverlayReplacesAndAppends(t *testing.T) {
	base := &Model{Version: "1.0.0", Entries: []Entry{{ID: "a", Weight: 0.1}, {ID: "b", Weight: 0.2}}}
	overlay := &Model{Version: "1.0.0", Entries: []Entry{{ID: "b", Weight: 0.9}, {ID: "c", Weight: 0.3}}}
	m := Merge(base, overlay)
	if len(m.Entries) != 3 || m.Entries[1].ID != "b" || m.Entries[1].Weight != 0.9 || m.Entries[2].ID != "c" {
		t.Fatalf("merged = %s", spew.Sdump(m))
	}
	if Merge(base, nil) != base {
		t.Fatal("nil overlay copied base")
	}
}

func TestLearnerRecordsAndReinforces(t *testing.T) {
	l := &Learner{Path: filepath.Join(t.TempDir(), "learned", "overlay.json")}
	fix := Fix{Kind: FixForceClone, Target: "greet.name"}
	for i := 0; i < 2; i++ {
		if err := l.Record("E0382", "ownership", "use of moved value: `name`", fix); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	m, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("entries = %s", spew.Sdump(m))
	}
	e := m.Entries[0]
	if !strings.HasPrefix(e.ID, "learned-E0382-") || math.Abs(e.Weight-0.7) > 1e-9 {
		t.Fatalf("entry = %+v", e)
	}

	got := New(Merge(DefaultModel(), m)).Suggest("E0382", "use of moved value: `name`", 10)
	found := false
	for _, s := range got {
		if s.ID == e.ID && s.Fix == fix {
			found = true
		}
	}
	if !found {
		t.Fatalf("learned entry not suggested: %s", spew.Sdump(got))
	}
}

func TestLearnerWeightIsCapped(t *testing.T) {
	l := &Learner{Path: filepath.Join(t.TempDir(), "overlay.json")}
	fix := Fix{Kind: FixConfigToggle, Target: "clone_strings", Value: "true"}
	for i := 0; i < 8; i++ {
		if err := l.Record("E0308", "types", "mismatched types", fix); err != nil {
			t.Fatal(err)
		}
	}
	m, err := l.Load()
	if err != nil {
		t.Fatal(err)
	}
	if m.Entries[0].Weight != 1 {
		t.Fatalf("weight = %v", m.Entries[0].Weight)
	}
}

const modelDoc = `{"version":"1.0.0","entries":[{"id":"x","codes":["E1"],"fix":{"kind":"manual"},"weight":0.5}]}`

func TestFetchWithInjectedClient(t *testing.T) {
	sum := digest([]byte(modelDoc))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing.json") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, modelDoc)
	}))
	defer srv.Close()

	f := &Fetcher{Client: srv.Client()}
	dir := t.TempDir()
	path, err := f.Fetch(context.Background(), srv.URL+"/models/"+sum+".json", dir)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if path != filepath.Join(dir, sum+".json") {
		t.Fatalf("path = %s", path)
	}
	if _, err := LoadModel(path); err != nil {
		t.Fatalf("stored model: %v", err)
	}

	wrong := strings.Repeat("f", 64)
	if _, err := f.Fetch(context.Background(), srv.URL+"/models/"+wrong+".json", dir); !errors.Is(err, perrors.ErrCacheCorrupt) {
		t.Fatalf("digest mismatch err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/missing.json", dir); err == nil {
		t.Fatal("404 accepted")
	}
}

func genSelfSigned(t *testing.T) *tls.Config {
	t.Helper()
	priv, _ := rsa.GenerateKey(rand.Reader, 2048)
	tmpl := &x509.Certificate{SerialNumber: big.NewInt(2), NotBefore: time.Now().Add(-time.Hour), NotAfter: time.Now().Add(24 * time.Hour), DNSNames: []string{"localhost"}, KeyUsage: x509.KeyUsageDigitalSignature, ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}}
	der, _ := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pair, _ := tls.X509KeyPair(certPEM, keyPEM)
	return &tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12}
}

func TestFetchOverHTTP3Loopback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/model.json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(modelDoc)) })
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skip("udp not available:", err)
	}
	srv := &http3.Server{TLSConfig: genSelfSigned(t), Handler: mux}
	go func() { _ = srv.Serve(pc) }()
	defer func() {
		_ = srv.Close()
		_ = pc.Close()
	}()

	f := NewFetcher(&tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}, 2*time.Second)
	defer f.Close()
	path, err := f.Fetch(context.Background(), "https://"+pc.LocalAddr().String()+"/model.json", t.TempDir())
	if err != nil {
		t.Skip("http3 dial failed:", err)
	}
	if filepath.Base(path) != digest([]byte(modelDoc))+".json" {
		t.Fatalf("path = %s", path)
	}
}
