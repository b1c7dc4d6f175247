// Package creds loads service-account credentials for the JWT-bearer
// token exchange. A credential file is a JSON document carrying the
// account's email identity and its PEM-encoded RSA signing key.
// This is a leaf package imported by drive/ and config/.
package creds

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v4"
)

// Sentinel errors for credential loading problems.
var (
	ErrMissingEmail = errors.New("creds: missing client_email field")
	ErrMissingKey   = errors.New("creds: missing private_key field")
)

// Credentials holds the identity and signing material of a service
// account. Immutable after loading.
type Credentials struct {
	Email      string
	PrivateKey *rsa.PrivateKey
}

// credentialsFile mirrors the JSON document on disk. Only the fields
// the token exchange needs are decoded; everything else is ignored.
type credentialsFile struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Load reads and parses a service-account credential file.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("creds: reading %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("creds: parsing %s: %w", path, err)
	}

	return c, nil
}

// Parse decodes a service-account JSON document and parses its signing
// key. The PEM is parsed once here so every later assertion signing is
// a pure in-memory operation.
func Parse(data []byte) (*Credentials, error) {
	var cf credentialsFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("decoding credential document: %w", err)
	}

	if cf.ClientEmail == "" {
		return nil, ErrMissingEmail
	}

	if cf.PrivateKey == "" {
		return nil, ErrMissingKey
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cf.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing private_key PEM: %w", err)
	}

	return &Credentials{
		Email:      cf.ClientEmail,
		PrivateKey: key,
	}, nil
}
