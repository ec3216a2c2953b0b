package orchestrate

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/remsec/connwarden/internal/domain/session"
)

// target is a parsed connection destination.
type target struct {
	host string
	port int
}

// parseTarget extracts host and port from an entry's target field. Entries
// usually hold bare "host" or "host:port" strings rather than full URLs, so a
// scheme is supplied before the strict parse when none survives the first
// attempt.
func parseTarget(raw string, defaultPort int) (target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return target{}, &session.ParseError{Raw: raw, Err: errors.New("empty target")}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		u, err = url.Parse("rdp://" + raw)
		if err != nil {
			return target{}, &session.ParseError{Raw: raw, Err: err}
		}
	}

	host := u.Hostname()
	if host == "" {
		return target{}, &session.ParseError{Raw: raw, Err: errors.New("no host component")}
	}

	port := defaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return target{}, &session.ParseError{Raw: raw, Err: err}
		}
	}

	return target{host: host, port: port}, nil
}
