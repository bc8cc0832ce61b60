package cache

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// ValkeyProvider implements Provider against a Valkey/Redis-compatible
// server. Connections are dialed per operation; the snapshot publication
// workload is one SET per cycle, so pooling buys nothing here.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// ValkeyConfig holds connection parameters for the Valkey server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

// NewValkeyProvider creates a Provider and pings the target so bad
// credentials or connectivity fail at startup, not on the first publish.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}

	normaliseDurations(&cfg)
	provider := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := provider.ping(ctx); err != nil {
		return nil, err
	}

	return provider, nil
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.withConn(ctx, func(c *conn) error {
		if err := c.writeCommand("GET", []byte(key)); err != nil {
			return err
		}

		r, err := c.readReply()
		if err != nil {
			return err
		}

		switch r.kind {
		case replyNil:
			return ErrCacheMiss
		case replyBulkString:
			payload = r.data
			return nil
		default:
			return fmt.Errorf("unexpected valkey reply kind %q for GET", r.kind)
		}
	})
	return payload, err
}

// Set stores bytes with the provided TTL.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return p.withConn(ctx, func(c *conn) error {
		args := [][]byte{[]byte(key), value}
		if ttl > 0 {
			ms := strconv.FormatInt(ttl.Milliseconds(), 10)
			args = append(args, []byte("PX"), []byte(ms))
		}

		if err := c.writeCommand("SET", args...); err != nil {
			return err
		}

		r, err := c.readReply()
		if err != nil {
			return err
		}
		if r.kind != replySimpleString || string(r.data) != "OK" {
			return fmt.Errorf("unexpected SET response: %s", r.data)
		}
		return nil
	})
}

// Del removes a key.
func (p *ValkeyProvider) Del(ctx context.Context, key string) error {
	return p.withConn(ctx, func(c *conn) error {
		if err := c.writeCommand("DEL", []byte(key)); err != nil {
			return err
		}
		_, err := c.readReply()
		return err
	})
}

// Close is a no-op; the provider holds no persistent connections.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) ping(ctx context.Context) error {
	return p.withConn(ctx, func(c *conn) error {
		if err := c.writeCommand("PING"); err != nil {
			return err
		}
		r, err := c.readReply()
		if err != nil {
			return err
		}
		if r.kind != replySimpleString || string(r.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", r.data)
		}
		return nil
	})
}

func (p *ValkeyProvider) withConn(ctx context.Context, fn func(*conn) error) error {
	var lastErr error
	retries := p.cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c, err := p.dial(ctx)
		if err != nil {
			lastErr = err
			if shouldRetry(err) && attempt < retries-1 {
				time.Sleep(backoff(attempt))
				continue
			}
			return err
		}

		err = p.bootstrap(c)
		if err != nil {
			c.close()
			lastErr = err
			if shouldRetry(err) && attempt < retries-1 {
				time.Sleep(backoff(attempt))
				continue
			}
			return err
		}

		err = fn(c)
		c.close()
		if err == nil {
			return nil
		}
		lastErr = err
		if shouldRetry(err) && attempt < retries-1 {
			time.Sleep(backoff(attempt))
			continue
		}
		return err
	}
	return lastErr
}

func (p *ValkeyProvider) dial(ctx context.Context) (*conn, error) {
	dialer := net.Dialer{Timeout: deadlineOr(ctx, p.cfg.DialTimeout)}
	var (
		netConn net.Conn
		err     error
	)
	if p.cfg.TLS {
		host := hostForTLS(p.cfg.Addr)
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
		netConn, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, tlsCfg)
	} else {
		netConn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return &conn{
		netConn: netConn,
		reader:  bufio.NewReader(netConn),
		writer:  bufio.NewWriter(netConn),
		cfg:     p.cfg,
	}, nil
}

func (p *ValkeyProvider) bootstrap(c *conn) error {
	if p.cfg.Password != "" {
		cmd := []string{"AUTH"}
		if p.cfg.Username != "" {
			cmd = append(cmd, p.cfg.Username, p.cfg.Password)
		} else {
			cmd = append(cmd, p.cfg.Password)
		}
		if err := c.writeStrings(cmd...); err != nil {
			return err
		}
		r, err := c.readReply()
		if err != nil {
			return err
		}
		if r.kind != replySimpleString || !strings.EqualFold(string(r.data), "OK") {
			return fmt.Errorf("auth failed: %s", r.data)
		}
	}
	if p.cfg.DB > 0 {
		if err := c.writeCommand("SELECT", []byte(strconv.Itoa(p.cfg.DB))); err != nil {
			return err
		}
		r, err := c.readReply()
		if err != nil {
			return err
		}
		if r.kind != replySimpleString || !strings.EqualFold(string(r.data), "OK") {
			return fmt.Errorf("select failed: %s", r.data)
		}
	}
	return nil
}

// replyKind enumerates the subset of RESP types the provider needs.
type replyKind string

const (
	replySimpleString replyKind = "+"
	replyBulkString   replyKind = "$"
	replyInteger      replyKind = ":"
	replyNil          replyKind = "_"
)

type reply struct {
	kind replyKind
	data []byte
}

// conn wraps a network connection with RESP read/write helpers.
type conn struct {
	netConn net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	cfg     ValkeyConfig
}

func (c *conn) close() {
	_ = c.netConn.Close()
}

func (c *conn) writeCommand(command string, args ...[]byte) error {
	parts := make([][]byte, 0, len(args)+1)
	parts = append(parts, []byte(command))
	parts = append(parts, args...)
	return c.write(parts...)
}

func (c *conn) writeStrings(parts ...string) error {
	chunks := make([][]byte, 0, len(parts))
	for _, p := range parts {
		chunks = append(chunks, []byte(p))
	}
	return c.write(chunks...)
}

func (c *conn) write(parts ...[]byte) error {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	if _, err := c.writer.WriteString(fmt.Sprintf("*%d\r\n", len(parts))); err != nil {
		return err
	}
	for _, part := range parts {
		if _, err := c.writer.WriteString(fmt.Sprintf("$%d\r\n", len(part))); err != nil {
			return err
		}
		if _, err := c.writer.Write(part); err != nil {
			return err
		}
		if _, err := c.writer.WriteString("\r\n"); err != nil {
			return err
		}
	}
	return c.writer.Flush()
}

func (c *conn) readReply() (reply, error) {
	if err := c.netConn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return reply{}, err
	}
	prefix, err := c.reader.ReadByte()
	if err != nil {
		return reply{}, err
	}
	switch prefix {
	case '+':
		line, err := c.readLine()
		return reply{kind: replySimpleString, data: line}, err
	case '-':
		line, err := c.readLine()
		if err != nil {
			return reply{}, err
		}
		return reply{}, errors.New(string(line))
	case ':':
		line, err := c.readLine()
		return reply{kind: replyInteger, data: line}, err
	case '$':
		line, err := c.readLine()
		if err != nil {
			return reply{}, err
		}
		size, err := strconv.Atoi(string(line))
		if err != nil {
			return reply{}, err
		}
		if size == -1 {
			return reply{kind: replyNil}, nil
		}
		buf := make([]byte, size)
		if _, err := readFull(c.reader, buf); err != nil {
			return reply{}, err
		}
		if err := c.expectCRLF(); err != nil {
			return reply{}, err
		}
		return reply{kind: replyBulkString, data: buf}, nil
	default:
		return reply{}, fmt.Errorf("unexpected RESP prefix %q", prefix)
	}
}

func (c *conn) readLine() ([]byte, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return []byte(line), nil
}

func (c *conn) expectCRLF() error {
	b1, err := c.reader.ReadByte()
	if err != nil {
		return err
	}
	b2, err := c.reader.ReadByte()
	if err != nil {
		return err
	}
	if b1 != '\r' || b2 != '\n' {
		return fmt.Errorf("invalid line termination")
	}
	return nil
}

func normaliseDurations(cfg *ValkeyConfig) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

func deadlineOr(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d == 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func backoff(attempt int) time.Duration {
	base := 25 * time.Millisecond
	return time.Duration(1<<attempt) * base
}

func shouldRetry(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && (netErr.Timeout() || netErr.Temporary())
}

func hostForTLS(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
