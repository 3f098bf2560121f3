// Package sftp mirrors blobs to a remote host over SFTP.
package sftp

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Config describes the remote host and directory.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	KeyPath        string
	KnownHostsPath string
	Dir            string
	Timeout        time.Duration
}

// dialFunc opens an SFTP session and returns a closer that tears down every
// layer under it.
type dialFunc func(ctx context.Context) (*sftp.Client, func() error, error)

// BlobStore writes each object over a fresh SFTP session.
type BlobStore struct {
	dir  string
	host string
	dial dialFunc
}

// New validates cfg and returns a store. No connection is made until the
// first write.
func New(cfg Config) (*BlobStore, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("sftp: host and user are required")
	}
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}
	hostKey, err := hostKeyCallback(cfg.KnownHostsPath)
	if err != nil {
		return nil, err
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	return newWithDialer(cfg.Dir, addr, sshDialer(addr, sshCfg)), nil
}

func newWithDialer(dir, host string, dial dialFunc) *BlobStore {
	if dir == "" {
		dir = "."
	}
	return &BlobStore{dir: dir, host: host, dial: dial}
}

func authMethods(cfg Config) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyPath != "" {
		key, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("sftp: read key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sftp: parse key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("sftp: password or key is required")
	}
	return methods, nil
}

// Without a known_hosts file the host key is not verified.
func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	if knownHostsPath == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("sftp: load known_hosts: %w", err)
	}
	return cb, nil
}

func sshDialer(addr string, sshCfg *ssh.ClientConfig) dialFunc {
	return func(ctx context.Context) (*sftp.Client, func() error, error) {
		d := net.Dialer{Timeout: sshCfg.Timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("sftp: dial: %w", err)
		}
		c, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("sftp: handshake: %w", err)
		}
		sshClient := ssh.NewClient(c, chans, reqs)
		client, err := sftp.NewClient(sshClient)
		if err != nil {
			_ = sshClient.Close()
			return nil, nil, fmt.Errorf("sftp: new client: %w", err)
		}
		return client, func() error {
			clientErr := client.Close()
			if err := sshClient.Close(); err != nil {
				return err
			}
			return clientErr
		}, nil
	}
}

// PutObject uploads r to dir/name, replacing any existing file.
func (s *BlobStore) PutObject(ctx context.Context, name string, _ string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	client, closeFn, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = closeFn()
	}()

	remotePath := path.Join(s.dir, name)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", fmt.Errorf("sftp: mkdir %s: %w", path.Dir(remotePath), err)
	}
	dst, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("sftp: create %s: %w", remotePath, err)
	}
	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("sftp: upload %s: %w", remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("sftp: close %s: %w", remotePath, err)
	}
	return fmt.Sprintf("sftp://%s/%s", s.host, strings.TrimPrefix(remotePath, "/")), nil
}
