package proxy

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MaxSessionIDLength is the longest session id the proxy accepts
const MaxSessionIDLength = 50

const digestLength = 8

// SessionID returns the session id for one attempt of one username:
// session_<username>_<attempt>. Characters outside [A-Za-z0-9._~] become
// '_' and the username part is shortened so the attempt suffix always fits.
// Whenever the username had to be altered, a digest of the original is
// appended to it so distinct usernames never share a session.
func SessionID(username string, attempt int) string {
	const prefix = "session_"
	suffix := "_" + strconv.Itoa(attempt)
	room := MaxSessionIDLength - len(prefix) - len(suffix)

	name := sanitize(username)
	if name == username && len(name) <= room {
		return prefix + name + suffix
	}

	tag := "_" + digest(username)
	if len(name) > room-len(tag) {
		name = name[:room-len(tag)]
	}
	return prefix + name + tag + suffix
}

// digest is a short stable fingerprint of username
func digest(username string) string {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(username))
	return strings.ReplaceAll(id.String(), "-", "")[:digestLength]
}

// ValidSessionID reports whether id only uses the allowed alphabet
func ValidSessionID(id string) bool {
	if id == "" || len(id) > MaxSessionIDLength {
		return false
	}
	for _, r := range id {
		if !allowed(r) {
			return false
		}
	}
	return true
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if allowed(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func allowed(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '.' || r == '_' || r == '~'
}
