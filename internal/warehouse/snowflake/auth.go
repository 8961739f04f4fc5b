package snowflake

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/youmark/pkcs8"
)

// Auth methods.
const (
	AuthKeyPair   = "KEY_PAIR"
	AuthUserLogin = "USER_LOGIN"
)

// Validate checks that the parameters required by the auth method are set.
// Every missing parameter is reported.
func (c Config) Validate() error {
	var result *multierror.Error
	if c.Account == "" {
		result = multierror.Append(result, fmt.Errorf("account is required"))
	}
	if c.User == "" {
		result = multierror.Append(result, fmt.Errorf("user is required"))
	}

	switch strings.ToUpper(c.Auth) {
	case AuthKeyPair:
		if c.PrivateKeyPath == "" {
			result = multierror.Append(result, fmt.Errorf("private_key_path is required for %s", AuthKeyPair))
		}
	case AuthUserLogin:
		if c.Password == "" {
			result = multierror.Append(result, fmt.Errorf("password is required for %s", AuthUserLogin))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("auth %q must be %s or %s", c.Auth, AuthKeyPair, AuthUserLogin))
	}
	return result.ErrorOrNil()
}

// LoadPrivateKey reads a PEM encoded RSA key. Encrypted PKCS#8 keys need the
// passphrase.
func LoadPrivateKey(path, passphrase string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	return ParsePrivateKey(data, passphrase)
}

// ParsePrivateKey decodes a PEM block holding a PKCS#1, PKCS#8 or encrypted
// PKCS#8 RSA key.
func ParsePrivateKey(data []byte, passphrase string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key: no PEM block found")
	}

	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return nil, fmt.Errorf("private key is encrypted and no passphrase was given")
		}
		key, err := pkcs8.ParsePKCS8PrivateKeyRSA(block.Bytes, []byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("decrypt private key: %w", err)
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, expected RSA", key)
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("private key: unsupported PEM block %q", block.Type)
	}
}
