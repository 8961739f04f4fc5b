package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "bqpipe"
	keyringRef     = "keyring:"
)

// Secret fields that may live in the OS keyring.
const (
	SecretPassword             = "password"
	SecretPrivateKeyPassphrase = "private_key_passphrase"
)

// SecretFields lists the profile fields SetSecret accepts.
var SecretFields = []string{SecretPassword, SecretPrivateKeyPassphrase}

func secretKey(profile, field string) string {
	return profile + "/" + field
}

// ResolveSecrets fills the secret fields from the OS keyring. A field set to
// "keyring:" must be present in the keyring. An empty field is looked up only
// when the profile's auth method uses it, and a missing entry or an
// unavailable keyring leaves it empty.
func (p *Profile) ResolveSecrets() error {
	for field, dst := range p.secretFields() {
		switch *dst {
		case keyringRef:
			secret, err := keyring.Get(keyringService, secretKey(p.Name, field))
			switch {
			case err == nil:
				*dst = secret
			case errors.Is(err, keyring.ErrNotFound):
				return fmt.Errorf("profile %q: %s is not in the keyring; set it with `bqpipe profiles secret %s %s`", p.Name, field, p.Name, field)
			default:
				return fmt.Errorf("profile %q: read %s from keyring: %w", p.Name, field, err)
			}
		case "":
			if !p.usesSecret(field) {
				continue
			}
			if secret, err := keyring.Get(keyringService, secretKey(p.Name, field)); err == nil {
				*dst = secret
			}
		}
	}
	return nil
}

// usesSecret reports whether the profile's auth method reads field.
func (p *Profile) usesSecret(field string) bool {
	switch p.Warehouse {
	case WarehouseSnowflake:
		if strings.EqualFold(p.Auth, AuthUserLogin) {
			return field == SecretPassword
		}
		return field == SecretPrivateKeyPassphrase
	case WarehousePostgres:
		return field == SecretPassword
	}
	return false
}

func (p *Profile) secretFields() map[string]*string {
	return map[string]*string{
		SecretPassword:             &p.Password,
		SecretPrivateKeyPassphrase: &p.PrivateKeyPassphrase,
	}
}

// SetSecret stores a profile secret in the OS keyring.
func SetSecret(profile, field, value string) error {
	field = strings.ToLower(strings.TrimSpace(field))
	known := false
	for _, f := range SecretFields {
		if f == field {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("unknown secret field %q (want %s)", field, strings.Join(SecretFields, " or "))
	}
	if err := keyring.Set(keyringService, secretKey(profile, field), value); err != nil {
		return fmt.Errorf("store %s in keyring: %w", field, err)
	}
	return nil
}

// DeleteSecrets removes every keyring entry of a profile.
func DeleteSecrets(profile string) error {
	for _, field := range SecretFields {
		err := keyring.Delete(keyringService, secretKey(profile, field))
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("delete %s from keyring: %w", field, err)
		}
	}
	return nil
}
