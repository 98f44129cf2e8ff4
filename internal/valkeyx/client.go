package valkeyx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/park285/directory-assistant-go/internal/config"
)

// ErrDisabled 는 카운터 저장소가 비활성화되어 있음을 나타낸다.
var ErrDisabled = errors.New("counter store disabled")

// NewClient 는 설정으로 Valkey 클라이언트를 만든다.
// 비활성 상태면 ErrDisabled 를 반환하며, 호출자는 메모리 백엔드로 대체한다.
func NewClient(cfg config.CounterStoreConfig) (valkey.Client, error) {
	if !cfg.Enabled {
		if cfg.Required {
			return nil, errors.New("counter store required but disabled")
		}
		return nil, ErrDisabled
	}

	conn, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse counter store url: %w", err)
	}

	var tlsConfig *tls.Config
	if conn.UseTLS {
		host, _, splitErr := net.SplitHostPort(conn.Addr)
		if splitErr != nil {
			return nil, fmt.Errorf("parse counter store addr: %w", splitErr)
		}
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		TLSConfig:    tlsConfig,
		Username:     conn.Username,
		Password:     conn.Password,
		InitAddress:  []string{conn.Addr},
		SelectDB:     conn.SelectDB,
		DisableCache: cfg.DisableCache,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to valkey: %w", err)
	}
	return client, nil
}

// Ping 은 readiness 검사용 PING 을 보낸다.
func Ping(ctx context.Context, client valkey.Client) error {
	if client == nil {
		return ErrDisabled
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping valkey: %w", err)
	}
	return nil
}
