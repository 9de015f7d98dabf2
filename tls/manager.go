package tls

import (
	"bufio"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jittering/truststore"
)

// Authority issues server certificates from a locally trusted root.
type Authority interface {
	// Install adds the root to the system trust store. It may prompt.
	Install() error
	// Issue writes a certificate for hosts into dir and returns the
	// certificate and key paths.
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

// Config configures a Manager.
type Config struct {
	// Dir holds the CA root and the issued certificate.
	Dir string
	// Hosts are extra subject names, e.g. the mDNS host name.
	Hosts []string
	// Authority defaults to the truststore-backed local CA.
	Authority Authority
	Logger    *log.Logger
	// lanAddrs is replaced in tests.
	lanAddrs func() ([]string, error)
}

// Manager keeps a certificate for the agent's current addresses.
type Manager struct {
	caDir     string
	certDir   string
	caFile    string
	certFile  string
	keyFile   string
	hostsFile string
	extra     []string
	authority Authority
	lanAddrs  func() ([]string, error)
	logger    *log.Logger
}

// NewManager creates a manager rooted at cfg.Dir.
func NewManager(cfg Config) *Manager {
	caDir := filepath.Join(cfg.Dir, "ca")
	certDir := filepath.Join(cfg.Dir, "tls")
	m := &Manager{
		caDir:     caDir,
		certDir:   certDir,
		caFile:    filepath.Join(caDir, "rootCA.pem"),
		certFile:  filepath.Join(certDir, "server.crt"),
		keyFile:   filepath.Join(certDir, "server.key"),
		hostsFile: filepath.Join(certDir, "hosts.txt"),
		extra:     cfg.Hosts,
		authority: cfg.Authority,
		lanAddrs:  cfg.lanAddrs,
		logger:    cfg.Logger,
	}
	if m.authority == nil {
		m.authority = &localAuthority{caDir: caDir}
	}
	if m.lanAddrs == nil {
		m.lanAddrs = LANAddrs
	}
	if m.logger == nil {
		m.logger = log.New(io.Discard, "", 0)
	}
	return m
}

// Ensure returns certificate and key paths valid for the current hosts,
// issuing a new certificate when none exists or the addresses changed.
func (m *Manager) Ensure() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(m.certDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create certificate directory: %w", err)
	}

	lan, err := m.lanAddrs()
	if err != nil {
		m.logger.Printf("Warning: failed to list LAN addresses: %v", err)
	}
	hosts := certHosts(m.extra, lan)

	switch {
	case !m.certsExist():
		m.logger.Printf("No certificate found, issuing one for %v", hosts)
	case m.hostsChanged(hosts):
		m.logger.Printf("Addresses changed, reissuing certificate for %v", hosts)
	default:
		return m.certFile, m.keyFile, nil
	}

	if err := m.issue(hosts); err != nil {
		return "", "", err
	}
	return m.certFile, m.keyFile, nil
}

func (m *Manager) issue(hosts []string) error {
	m.logger.Println("Installing local CA (you may be prompted for your password)")
	if err := m.authority.Install(); err != nil {
		return fmt.Errorf("failed to install CA: %w", err)
	}

	certFile, keyFile, err := m.authority.Issue(hosts, m.certDir)
	if err != nil {
		return fmt.Errorf("failed to issue certificate: %w", err)
	}
	if certFile != m.certFile {
		if err := os.Rename(certFile, m.certFile); err != nil {
			return fmt.Errorf("failed to move certificate: %w", err)
		}
	}
	if keyFile != m.keyFile {
		if err := os.Rename(keyFile, m.keyFile); err != nil {
			return fmt.Errorf("failed to move key: %w", err)
		}
	}

	if err := m.writeHosts(hosts); err != nil {
		m.logger.Printf("Warning: failed to record certificate hosts: %v", err)
	}
	if fp, err := m.Fingerprint(); err == nil {
		m.logger.Printf("CA fingerprint (SHA256): %s", fp)
	}
	return nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

// hostsChanged reports whether hosts (sorted) differ from the recorded set.
func (m *Manager) hostsChanged(hosts []string) bool {
	recorded, err := m.readHosts()
	if err != nil {
		return true
	}
	return strings.Join(certHosts(nil, recorded), "\n") != strings.Join(hosts, "\n")
}

func (m *Manager) readHosts() ([]string, error) {
	f, err := os.Open(m.hostsFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if h := strings.TrimSpace(scanner.Text()); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts, scanner.Err()
}

func (m *Manager) writeHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0600)
}

// Fingerprint returns the colon-separated SHA-256 fingerprint of the CA.
func (m *Manager) Fingerprint() (string, error) {
	data, err := os.ReadFile(m.caFile)
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return "", fmt.Errorf("no PEM block in %s", m.caFile)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

// CAHandler serves the CA root so phones can install it before connecting
// to the device endpoint over WSS.
func (m *Manager) CAHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := os.ReadFile(m.caFile)
		if err != nil {
			http.Error(w, "CA certificate not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/x-pem-file")
		w.Header().Set("Content-Disposition", `attachment; filename="nfc-watch-ca.pem"`)
		w.Write(data)
		m.logger.Printf("CA certificate downloaded by %s", r.RemoteAddr)
	})
}

// localAuthority is an mkcert-style CA kept under caDir.
type localAuthority struct {
	caDir   string
	install func() error
	issue   func(hosts []string, dir string) (string, string, error)
}

func (a *localAuthority) load() error {
	if a.install != nil {
		return nil
	}
	if err := os.MkdirAll(a.caDir, 0700); err != nil {
		return fmt.Errorf("failed to create CA directory: %w", err)
	}
	os.Setenv("CAROOT", a.caDir)

	lib, err := truststore.NewLib()
	if err != nil {
		return fmt.Errorf("failed to initialize truststore: %w", err)
	}
	a.install = lib.Install
	a.issue = func(hosts []string, dir string) (string, string, error) {
		cert, err := lib.MakeCert(hosts, dir)
		if err != nil {
			return "", "", err
		}
		return cert.CertFile, cert.KeyFile, nil
	}
	return nil
}

func (a *localAuthority) Install() error {
	if err := a.load(); err != nil {
		return err
	}
	return a.install()
}

func (a *localAuthority) Issue(hosts []string, dir string) (string, string, error) {
	if err := a.load(); err != nil {
		return "", "", err
	}
	return a.issue(hosts, dir)
}
