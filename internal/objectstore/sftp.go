package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/soundvault/wavegen/internal/conf"
	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

const sftpConnectTimeout = 30 * time.Second

// SFTPStore uploads artifacts to a remote host over SFTP. Connections are
// per-operation; artifact uploads are infrequent enough that pooling is
// not worth the reconnect handling.
type SFTPStore struct {
	host     string
	port     int
	username string
	password string
	basePath string
	logger   *slog.Logger
}

// NewSFTPStore creates an SFTP store from configuration.
func NewSFTPStore(cfg *conf.SFTPSettings) *SFTPStore {
	port := cfg.Port
	if port == 0 {
		port = 22
	}
	return &SFTPStore{
		host:     cfg.Host,
		port:     port,
		username: cfg.User,
		password: cfg.Password,
		basePath: strings.TrimRight(cfg.BasePath, "/"),
		logger:   logging.ForService("objectstore"),
	}
}

// Name implements Store.
func (s *SFTPStore) Name() string { return "sftp" }

// connect establishes an SFTP session, honoring context cancellation.
func (s *SFTPStore) connect(ctx context.Context) (*sftp.Client, *ssh.Client, error) {
	type connResult struct {
		client *sftp.Client
		conn   *ssh.Client
		err    error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		config := &ssh.ClientConfig{
			User:            s.username,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: support known_hosts verification
			Timeout:         sftpConnectTimeout,
		}
		if s.password != "" {
			config.Auth = []ssh.AuthMethod{ssh.Password(s.password)}
		}

		addr := fmt.Sprintf("%s:%d", s.host, s.port)
		sshConn, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to connect: %w", err)}
			return
		}

		client, err := sftp.NewClient(sshConn)
		if err != nil {
			sshConn.Close()
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to create client: %w", err)}
			return
		}

		resultChan <- connResult{client: client, conn: sshConn}
	}()

	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case result := <-resultChan:
		return result.client, result.conn, result.err
	}
}

// Upload writes data to a temporary remote name and renames it into place.
func (s *SFTPStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	client, conn, err := s.connect(ctx)
	if err != nil {
		return "", s.wrap(err, "upload", key)
	}
	defer conn.Close()
	defer client.Close()

	remotePath := path.Join(s.basePath, key)
	if err := client.MkdirAll(path.Dir(remotePath)); err != nil {
		return "", s.wrap(err, "create_object_directory", key)
	}

	tempPath := remotePath + fmt.Sprintf(".upload-%d", os.Getpid())
	dst, err := client.Create(tempPath)
	if err != nil {
		return "", s.wrap(err, "create_temp_object", key)
	}
	if _, err := dst.Write(data); err != nil {
		dst.Close()
		client.Remove(tempPath)
		return "", s.wrap(err, "write_object", key)
	}
	if err := dst.Close(); err != nil {
		client.Remove(tempPath)
		return "", s.wrap(err, "close_object", key)
	}

	// PosixRename replaces an existing object atomically where the server
	// supports the extension.
	if err := client.PosixRename(tempPath, remotePath); err != nil {
		client.Remove(remotePath)
		if err := client.Rename(tempPath, remotePath); err != nil {
			client.Remove(tempPath)
			return "", s.wrap(err, "rename_object", key)
		}
	}

	s.logger.Debug("object stored", "backend", "sftp", "host", s.host, "key", key, "bytes", len(data))
	return fmt.Sprintf("sftp://%s/%s", s.host, strings.TrimLeft(remotePath, "/")), nil
}

// Exists implements Store.
func (s *SFTPStore) Exists(ctx context.Context, key string) (bool, error) {
	client, conn, err := s.connect(ctx)
	if err != nil {
		return false, s.wrap(err, "exists", key)
	}
	defer conn.Close()
	defer client.Close()

	_, err = client.Stat(path.Join(s.basePath, key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, s.wrap(err, "exists", key)
	}
}

func (s *SFTPStore) wrap(err error, operation, key string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.New(err).
		Component("objectstore").
		Category(errors.CategoryObjectStorage).
		Context("operation", operation).
		Context("backend", "sftp").
		Context("key", key).
		Build()
}
