package tls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge/tlsalpn01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
	log "github.com/sirupsen/logrus"
)

type acmeUser struct {
	email        string
	registration *registration.Resource
	key          *ecdsa.PrivateKey
}

func (u *acmeUser) GetEmail() string                        { return u.email }
func (u *acmeUser) GetRegistration() *registration.Resource { return u.registration }
func (u *acmeUser) GetPrivateKey() crypto.PrivateKey        { return u.key }

type ACMEConfig struct {
	Email    string
	CacheDir string
	// DirectoryURL defaults to the Let's Encrypt production directory
	DirectoryURL string
	// ChallengePort is where the TLS-ALPN-01 responder listens, default 443
	ChallengePort string
}

// CertManager obtains certificates for the mock server over ACME and keeps
// them in a cache directory between runs
type CertManager struct {
	client   *lego.Client
	cacheDir string
}

func NewCertManager(cfg ACMEConfig, accountKey *ecdsa.PrivateKey) (*CertManager, error) {
	if cfg.DirectoryURL == "" {
		cfg.DirectoryURL = lego.LEDirectoryProduction
	}
	if cfg.ChallengePort == "" {
		cfg.ChallengePort = "443"
	}
	if err := os.MkdirAll(cfg.CacheDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	user := &acmeUser{email: cfg.Email, key: accountKey}
	client, err := lego.NewClient(&lego.Config{
		CADirURL:   cfg.DirectoryURL,
		User:       user,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Certificate: lego.CertificateConfig{
			KeyType: certcrypto.EC384,
			Timeout: 30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lego client: %w", err)
	}

	if err := client.Challenge.SetTLSALPN01Provider(
		tlsalpn01.NewProviderServer("", cfg.ChallengePort),
	); err != nil {
		return nil, fmt.Errorf("failed to set TLS-ALPN-01 provider: %w", err)
	}

	log.Debugf("Registering ACME account for %s", cfg.Email)
	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		return nil, fmt.Errorf("failed to register account: %w", err)
	}
	user.registration = reg

	return &CertManager{client: client, cacheDir: cfg.CacheDir}, nil
}

func (m *CertManager) cachePaths(domains []string) (string, string) {
	base := strings.ReplaceAll(strings.Join(domains, "_"), "*", "wildcard")
	return filepath.Join(m.cacheDir, base+".crt"), filepath.Join(m.cacheDir, base+".key")
}

// Certificate returns a cached certificate for domains or obtains a new one
func (m *CertManager) Certificate(domains ...string) (*tls.Certificate, error) {
	certFile, keyFile := m.cachePaths(domains)

	if cert, err := tls.LoadX509KeyPair(certFile, keyFile); err == nil {
		log.Debugf("Using cached certificate %s", certFile)
		return &cert, nil
	}

	log.Infof("Requesting certificate for %v", domains)
	res, err := m.client.Certificate.Obtain(certificate.ObtainRequest{
		Domains: domains,
		Bundle:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to obtain certificate: %w", err)
	}

	if err := os.WriteFile(certFile, res.Certificate, 0644); err != nil {
		return nil, fmt.Errorf("failed to cache certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, res.PrivateKey, 0600); err != nil {
		return nil, fmt.Errorf("failed to cache private key: %w", err)
	}

	cert, err := tls.X509KeyPair(res.Certificate, res.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return &cert, nil
}
