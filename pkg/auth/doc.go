// Package auth stores the residential proxy password outside the config
// file.
//
// Lookups go through a Manager that tries, in order, the system keyring
// (github.com/zalando/go-keyring), an AES-GCM encrypted file under the user
// config directory, and the IGENGAGE_PROXY_PASSWORD environment variable.
// The first store that accepts a write keeps the password.
package auth
