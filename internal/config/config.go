// Package config loads the TOML configuration file describing the mailbox
// account to process and the certificate upload endpoint to expose.
package config

import (
	"os/user"

	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("config")

// Config is the root of the TOML configuration file.
type Config struct {
	Server struct {
		Address  string
		Username string
		Password string
	}
	Mailbox struct {
		Folders map[string]string
		// DeletePlainCopies removes the original plaintext message from
		// the source folder once its encrypted copy has been appended.
		DeletePlainCopies bool
		// MinAgeDays excludes messages newer than this from processing,
		// giving a user a grace period to notice and correct a bad upload.
		MinAgeDays int
	}
	Crypto struct {
		// DatabasePath is where the SQLite-backed parameter store lives.
		DatabasePath string
		// Workers bounds concurrent CPU-heavy crypto operations.
		Workers int
		// ListenAddress is where the certificate upload HTTP endpoint is
		// served, e.g. "127.0.0.1:8080".
		ListenAddress string
	}
}

// ExpandTilde replaces a leading "~/" in path with the current user's home
// directory. Paths without that prefix are returned unchanged.
func ExpandTilde(path string) string {
	if len(path) < 2 || path[0:2] != "~/" {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		logger.Warningf("failed to execute tilde expansion in path, using as-is (path=%s: %s)", path, err)
		return path
	}
	return usr.HomeDir + path[1:]
}
