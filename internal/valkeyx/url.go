package valkeyx

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultPort = "6379"

// ConnInfo 는 URL 에서 해석한 Valkey 접속 정보다.
type ConnInfo struct {
	Addr     string
	Username string
	Password string
	SelectDB int
	UseTLS   bool
}

// ParseURL 은 redis://, rediss://, valkey:// URL 또는 host[:port] 를 해석한다.
func ParseURL(raw string) (ConnInfo, error) {
	if strings.TrimSpace(raw) == "" {
		return ConnInfo{}, errors.New("counter store url is empty")
	}
	if !strings.Contains(raw, "://") {
		return parseAddr(raw)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ConnInfo{}, fmt.Errorf("parse url: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		return ConnInfo{}, errors.New("counter store host missing")
	}
	port := parsed.Port()
	if port == "" {
		port = defaultPort
	}

	selectDB := 0
	if path := strings.TrimPrefix(strings.TrimSpace(parsed.Path), "/"); path != "" {
		db, err := strconv.Atoi(path)
		if err != nil || db < 0 {
			return ConnInfo{}, fmt.Errorf("invalid counter store db %q", path)
		}
		selectDB = db
	}

	info := ConnInfo{
		Addr:     net.JoinHostPort(host, port),
		SelectDB: selectDB,
		UseTLS:   strings.EqualFold(parsed.Scheme, "rediss") || strings.EqualFold(parsed.Scheme, "valkeys"),
	}
	if parsed.User != nil {
		info.Username = parsed.User.Username()
		info.Password, _ = parsed.User.Password()
	}
	return info, nil
}

func parseAddr(addr string) (ConnInfo, error) {
	trimmed := strings.TrimSpace(addr)
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		var addrErr *net.AddrError
		if !errors.As(err, &addrErr) {
			return ConnInfo{}, fmt.Errorf("invalid counter store address: %w", err)
		}
		switch addrErr.Err {
		case "missing port in address":
			host = strings.TrimSuffix(strings.TrimPrefix(trimmed, "["), "]")
			port = defaultPort
		case "too many colons in address":
			host = trimmed
			port = defaultPort
		default:
			return ConnInfo{}, fmt.Errorf("invalid counter store address: %w", err)
		}
	}
	if strings.TrimSpace(host) == "" {
		return ConnInfo{}, errors.New("counter store host missing")
	}
	return ConnInfo{Addr: net.JoinHostPort(host, port)}, nil
}
