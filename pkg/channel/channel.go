// Package channel provides the transports a Session runs on: the
// platform shell in a local PTY, or a remote shell over SSH. Both
// satisfy session.Channel; the session layer neither knows nor cares
// which one it drives.
package channel

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ClientProvider is implemented by channels that ride on an SSH
// transport. Collaborators that need more than the shell stream (sftp,
// dial-through forwarding) type-assert for it.
type ClientProvider interface {
	Client() *ssh.Client
}

// ParseTarget splits "user@host[:port]" into its parts. The user may
// be empty; the port defaults to 22.
func ParseTarget(target string) (user, host string, port int, err error) {
	rest := target
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		user = rest[:at]
		rest = rest[at+1:]
	}
	if rest == "" {
		return "", "", 0, fmt.Errorf("target %q has no host", target)
	}

	host = rest
	port = 22
	if h, p, splitErr := net.SplitHostPort(rest); splitErr == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n < 1 || n > 65535 {
			return "", "", 0, fmt.Errorf("target %q has invalid port %q", target, p)
		}
		host = h
		port = n
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("target %q has no host", target)
	}
	return user, host, port, nil
}
