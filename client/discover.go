package client

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	multiaddr "github.com/multiformats/go-multiaddr"
)

// Endpoint is a resolved daemon connection descriptor.
type Endpoint struct {
	// Addr is the host:port pair suitable for net.Dial.
	Addr string
	// Multiaddr is the canonical multiaddr rendering of Addr, kept around
	// for logging/debug output rather than for dialing itself.
	Multiaddr multiaddr.Multiaddr
	// Cookie is the raw bytes decoded from the endpoint descriptor's hex
	// suffix, relayed verbatim in the Init handshake.
	Cookie []byte
}

const systemRuntimeFile = "/var/run/peerdrive/server.info"

// Discover resolves the daemon endpoint, trying in order:
// the PEERDRIVE env var (holding the descriptor line directly), then a
// per-user runtime file, then a system-wide runtime file. A .env file in
// the working directory is loaded first, best-effort, so PEERDRIVE can be
// supplied that way in development.
func Discover() (Endpoint, error) {
	_ = godotenv.Load() // best-effort; a missing .env file is not an error

	if line := os.Getenv("PEERDRIVE"); line != "" {
		return parseEndpointLine(line)
	}

	if p, err := perUserRuntimeFile(); err == nil {
		if line, err := readFirstLine(p); err == nil {
			return parseEndpointLine(line)
		}
	}

	if line, err := readFirstLine(systemRuntimeFile); err == nil {
		return parseEndpointLine(line)
	}

	return Endpoint{}, fmt.Errorf("client: no daemon endpoint found (checked $PEERDRIVE, per-user and system runtime files)")
}

func perUserRuntimeFile() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "peerdrive-"+u.Username, "server.info"), nil
}

func readFirstLine(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.SplitN(string(b), "\n", 2)[0]
	return strings.TrimSpace(line), nil
}

// parseEndpointLine parses "tcp://HOST:PORT/COOKIE-HEX".
func parseEndpointLine(line string) (Endpoint, error) {
	const prefix = "tcp://"
	if !strings.HasPrefix(line, prefix) {
		return Endpoint{}, fmt.Errorf("client: malformed endpoint descriptor %q: missing %q scheme", line, prefix)
	}
	rest := line[len(prefix):]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return Endpoint{}, fmt.Errorf("client: malformed endpoint descriptor %q: missing cookie", line)
	}
	hostport := rest[:slash]
	cookieHex := rest[slash+1:]

	cookie, err := hex.DecodeString(cookieHex)
	if err != nil {
		return Endpoint{}, fmt.Errorf("client: malformed cookie hex in %q: %w", line, err)
	}

	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return Endpoint{}, fmt.Errorf("client: malformed host:port in %q: %w", line, err)
	}
	if _, err := strconv.Atoi(portStr); err != nil {
		return Endpoint{}, fmt.Errorf("client: malformed port in %q: %w", line, err)
	}

	ma, err := buildMultiaddr(host, portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("client: building multiaddr for %q: %w", line, err)
	}

	return Endpoint{Addr: hostport, Multiaddr: ma, Cookie: cookie}, nil
}

func buildMultiaddr(host, port string) (multiaddr.Multiaddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip.To4() != nil {
			return multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%s", host, port))
		}
		return multiaddr.NewMultiaddr(fmt.Sprintf("/ip6/%s/tcp/%s", host, port))
	}
	return multiaddr.NewMultiaddr(fmt.Sprintf("/dns4/%s/tcp/%s", host, port))
}
