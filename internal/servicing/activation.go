package servicing

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/activation"

	"trident/internal/tridenterr"
)

// ActivatedSocket pairs an inherited listener with the name systemd
// assigned it via FileDescriptorName=.
type ActivatedSocket struct {
	Name     string
	Listener net.Listener
}

// SocketsFromEnvironment validates LISTEN_FDS/LISTEN_FDNAMES and returns
// one ActivatedSocket per inherited descriptor, each confirmed to be an
// open Unix domain socket. Returns (nil, nil) when the process wasn't
// socket-activated at all (LISTEN_FDS unset or empty).
func SocketsFromEnvironment() ([]ActivatedSocket, error) {
	fds, names, err := parseActivationEnv(os.Getenv("LISTEN_FDS"), os.Getenv("LISTEN_FDNAMES"))
	if err != nil || fds == 0 {
		return nil, err
	}

	files := activation.Files(false)
	if len(files) != fds {
		return nil, tridenterr.Internalf("expected %d inherited descriptors, systemd handed us %d", fds, len(files))
	}

	sockets := make([]ActivatedSocket, 0, fds)
	for i, f := range files {
		l, err := net.FileListener(f)
		if err != nil {
			return nil, tridenterr.Wrapf(tridenterr.Internal, err, "inherited descriptor %d is not a usable listener", i)
		}
		if l.Addr().Network() != "unix" {
			return nil, tridenterr.Internalf("inherited descriptor %d is not a Unix domain socket (network %q)", i, l.Addr().Network())
		}
		sockets = append(sockets, ActivatedSocket{Name: names[i], Listener: l})
	}
	return sockets, nil
}

// parseActivationEnv validates the LISTEN_FDS/LISTEN_FDNAMES pair in
// isolation from any actual file descriptor inheritance, so the arity
// and integer-format checks can be unit tested without a real systemd
// socket-activation environment.
func parseActivationEnv(fdsStr, namesStr string) (int, []string, error) {
	if fdsStr == "" {
		return 0, nil, nil
	}

	fds, err := strconv.Atoi(fdsStr)
	if err != nil || fds < 0 {
		return 0, nil, tridenterr.Internalf("LISTEN_FDS must be a non-negative integer, got %q", fdsStr)
	}

	var names []string
	if namesStr != "" {
		names = strings.Split(namesStr, ",")
	}
	if len(names) != fds {
		return 0, nil, tridenterr.Internalf("LISTEN_FDNAMES has %d entries, does not match LISTEN_FDS=%d: %s", len(names), fds, fmt.Sprintf("%v", names))
	}

	return fds, names, nil
}
