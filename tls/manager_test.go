package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeAuthority struct {
	installs int
	issued   [][]string
	err      error
}

func (a *fakeAuthority) Install() error {
	a.installs++
	return a.err
}

func (a *fakeAuthority) Issue(hosts []string, dir string) (string, string, error) {
	if a.err != nil {
		return "", "", a.err
	}
	a.issued = append(a.issued, hosts)
	cert := filepath.Join(dir, "issued.pem")
	key := filepath.Join(dir, "issued-key.pem")
	os.WriteFile(cert, []byte("cert"), 0600)
	os.WriteFile(key, []byte("key"), 0600)
	return cert, key, nil
}

func newTestManager(t *testing.T, lan *[]string) (*Manager, *fakeAuthority) {
	t.Helper()
	auth := &fakeAuthority{}
	m := NewManager(Config{
		Dir:       t.TempDir(),
		Hosts:     []string{"agent.local"},
		Authority: auth,
		lanAddrs:  func() ([]string, error) { return *lan, nil },
	})
	return m, auth
}

func TestEnsure_IssuesOnceAndReuses(t *testing.T) {
	lan := []string{"192.168.1.20"}
	m, auth := newTestManager(t, &lan)

	certFile, keyFile, err := m.Ensure()
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if certFile != m.certFile || keyFile != m.keyFile {
		t.Errorf("Expected canonical paths, got %s %s", certFile, keyFile)
	}
	if _, err := os.Stat(certFile); err != nil {
		t.Errorf("Expected certificate to be moved into place: %v", err)
	}
	want := []string{"127.0.0.1", "192.168.1.20", "agent.local", "localhost"}
	if len(auth.issued) != 1 || strings.Join(auth.issued[0], ",") != strings.Join(want, ",") {
		t.Fatalf("Expected one issue for %v, got %v", want, auth.issued)
	}

	if _, _, err := m.Ensure(); err != nil {
		t.Fatalf("second Ensure failed: %v", err)
	}
	if len(auth.issued) != 1 {
		t.Errorf("Expected the certificate to be reused, issued %d times", len(auth.issued))
	}
}

func TestEnsure_ReissuesWhenAddressesChange(t *testing.T) {
	lan := []string{"192.168.1.20"}
	m, auth := newTestManager(t, &lan)

	if _, _, err := m.Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	lan = []string{"10.0.0.5"}
	if _, _, err := m.Ensure(); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if len(auth.issued) != 2 {
		t.Errorf("Expected a reissue after the address change, issued %d times", len(auth.issued))
	}
}

func TestEnsure_AuthorityError(t *testing.T) {
	lan := []string{}
	m, auth := newTestManager(t, &lan)
	auth.err = errors.New("keychain locked")

	if _, _, err := m.Ensure(); err == nil || !errors.Is(err, auth.err) {
		t.Errorf("Expected wrapped authority error, got %v", err)
	}
}

func TestCertHosts(t *testing.T) {
	got := certHosts([]string{"", "b.local", "localhost"}, []string{"10.0.0.1", "10.0.0.1"})
	want := "10.0.0.1,127.0.0.1,b.local,localhost"
	if strings.Join(got, ",") != want {
		t.Errorf("certHosts = %v, want %s", got, want)
	}
}

func TestIPv4Strings(t *testing.T) {
	addrs := []net.Addr{
		&net.IPNet{IP: net.ParseIP("192.168.0.2"), Mask: net.CIDRMask(24, 32)},
		&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
		&net.IPNet{IP: net.ParseIP("fe80::1"), Mask: net.CIDRMask(64, 128)},
		&net.IPAddr{IP: net.ParseIP("10.1.2.3")},
	}
	got := ipv4Strings(addrs)
	if strings.Join(got, ",") != "192.168.0.2,10.1.2.3" {
		t.Errorf("ipv4Strings = %v", got)
	}
}

func writeTestCA(t *testing.T, path string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test CA"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	os.MkdirAll(filepath.Dir(path), 0700)
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestFingerprintAndCAHandler(t *testing.T) {
	lan := []string{}
	m, _ := newTestManager(t, &lan)

	if _, err := m.Fingerprint(); err == nil {
		t.Error("Expected an error without a CA")
	}
	rec := httptest.NewRecorder()
	m.CAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ca.pem", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 without a CA, got %d", rec.Code)
	}

	writeTestCA(t, m.caFile)

	fp, err := m.Fingerprint()
	if err != nil {
		t.Fatalf("Fingerprint failed: %v", err)
	}
	if parts := strings.Split(fp, ":"); len(parts) != 32 {
		t.Errorf("Expected 32 hex pairs, got %q", fp)
	}

	rec = httptest.NewRecorder()
	m.CAHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ca.pem", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Body.String(), "-----BEGIN CERTIFICATE-----") {
		t.Error("Expected the PEM encoded CA in the body")
	}
}
