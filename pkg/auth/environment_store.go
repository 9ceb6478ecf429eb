package auth

import (
	"os"
	"time"
)

// PasswordEnvVar holds the proxy password when nothing else is configured
const PasswordEnvVar = "IGENGAGE_PROXY_PASSWORD"

// EnvironmentStore reads the password from the environment. It is read-only
// and answers for any credential name.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Backend() string { return "environment (" + PasswordEnvVar + ")" }

func (e *EnvironmentStore) Store(cred *Credential) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(name string) (*Credential, error) {
	password := os.Getenv(PasswordEnvVar)
	if password == "" {
		return nil, ErrCredentialsNotFound
	}
	return &Credential{Name: name, Password: password, LastModified: time.Now()}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(PasswordEnvVar) != ""
}
