// Package main writes development material for running the client against the
// ERP stand-in over TLS: a CA, a server certificate, a demo user, a fresh token
// credential set and a config file wiring them together.
package main

import (
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atinyakov/TimeKeeper/internal/credgen"
	"github.com/atinyakov/TimeKeeper/internal/models"
)

type options struct {
	dir    string
	hosts  []string
	caCert string
	caKey  string
	addr   string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:          "devkit",
		Short:        "Generate certificates and credentials for the ERP stand-in",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(opts, out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "certs", "output directory")
	f.StringSliceVar(&opts.hosts, "host", []string{"localhost", "127.0.0.1"}, "server certificate host names or IPs")
	f.StringVar(&opts.caCert, "ca-cert", "", "existing CA certificate to sign with")
	f.StringVar(&opts.caKey, "ca-key", "", "existing CA private key to sign with")
	f.StringVar(&opts.addr, "addr", "localhost:8443", "address the stand-in will listen on")
	return cmd
}

func run(opts options, out io.Writer) error {
	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	ca, caKey, err := loadOrCreateCA(opts)
	if err != nil {
		return err
	}
	caCertPath := filepath.Join(opts.dir, "ca.crt")
	if err := os.WriteFile(caCertPath, credgen.EncodeCertificate(ca.Raw), 0o644); err != nil {
		return fmt.Errorf("write ca cert: %w", err)
	}

	certPEM, keyPEM, err := credgen.GenerateServerCertificate(opts.hosts, ca, caKey)
	if err != nil {
		return err
	}
	serverCert := filepath.Join(opts.dir, "server.crt")
	serverKey := filepath.Join(opts.dir, "server.key")
	if err := writePair(serverCert, serverKey, certPEM, keyPEM); err != nil {
		return err
	}

	creds, err := credgen.GenerateTokenCredentials()
	if err != nil {
		return err
	}
	password, err := credgen.GeneratePassword()
	if err != nil {
		return err
	}
	hash, err := credgen.HashPassword(password)
	if err != nil {
		return err
	}
	configPath := filepath.Join(opts.dir, "timekeeper.yaml")
	if err := writeConfig(configPath, opts.addr, serverCert, serverKey, caCertPath, hash, creds); err != nil {
		return err
	}

	fmt.Fprintf(out, "Certificates written to %s\n", opts.dir)
	fmt.Fprintf(out, "Config written to %s\n", configPath)
	fmt.Fprintf(out, "Remote base URL: https://%s\n", opts.addr)
	fmt.Fprintf(out, "Password grant user: demo / %s\n", password)
	fmt.Fprintf(out, "Token credentials:\n  consumer key:    %s\n  consumer secret: %s\n  token id:        %s\n  token secret:    %s\n",
		creds.ConsumerKey, creds.ConsumerSecret, creds.TokenID, creds.TokenSecret)
	return nil
}

// loadOrCreateCA reuses the CA given on the command line or creates a new one,
// writing its key next to the other files.
func loadOrCreateCA(opts options) (*x509.Certificate, any, error) {
	if opts.caCert != "" || opts.caKey != "" {
		return credgen.LoadCACredentials(opts.caCert, opts.caKey)
	}
	ca, key, err := credgen.GenerateCA("TimeKeeper Dev CA")
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := credgen.EncodeKey(key)
	if err != nil {
		return nil, nil, err
	}
	if err := os.WriteFile(filepath.Join(opts.dir, "ca.key"), keyPEM, 0o600); err != nil {
		return nil, nil, fmt.Errorf("write ca key: %w", err)
	}
	return ca, key, nil
}

func writeConfig(path, addr, certPath, keyPath, caPath, passwordHash string, creds models.TokenCredentials) error {
	v := viper.New()
	v.Set("server.addr", addr)
	v.Set("server.tls_cert", certPath)
	v.Set("server.tls_key", keyPath)
	v.Set("server.users", []map[string]string{{
		"username":    "demo",
		"password":    passwordHash,
		"employee_id": "42",
	}})
	v.Set("server.token_credentials", []map[string]string{{
		"consumer_key":    creds.ConsumerKey,
		"consumer_secret": creds.ConsumerSecret,
		"token_id":        creds.TokenID,
		"token_secret":    creds.TokenSecret,
	}})
	v.Set("remote.ca_file", caPath)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func writePair(certPath, keyPath string, certPEM, keyPEM []byte) error {
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	return nil
}
