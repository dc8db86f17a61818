package httpstore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"
)

// newTLSClient builds an *http.Client trusting only the CA bundle at
// rootsFile, mirroring the teacher's credentials.NewClientTLSFromFile
// call for the gRPC backends but for the store's outbound HTTP client.
func newTLSClient(rootsFile string) (*http.Client, error) {
	pem, err := os.ReadFile(rootsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read trusted roots file: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in trusted roots file %s", rootsFile)
	}

	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{RootCAs: pool},
		},
	}, nil
}
