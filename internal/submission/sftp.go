package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/config"
)

// UploadReceipt describes a completed SFTP transfer.
type UploadReceipt struct {
	RemotePath string `json:"remotePath"`
	Bytes      int64  `json:"bytes"`
}

// SFTPUploader delivers declaration files over SFTP.
type SFTPUploader struct {
	cfg    config.SFTPConfig
	logger *slog.Logger
}

// NewSFTPUploader creates an uploader. Connections are opened per upload.
func NewSFTPUploader(cfg config.SFTPConfig, logger *slog.Logger) *SFTPUploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &SFTPUploader{cfg: cfg, logger: logger}
}

// RemoteName builds the remote file name for an invoice's declaration.
func RemoteName(invoiceID, localPath string, at time.Time) string {
	return "declaration_" + invoiceID + "_" + strconv.FormatInt(at.UnixMilli(), 10) + filepath.Ext(localPath)
}

// Upload copies localPath to the configured remote directory as remoteName.
// The connection is always closed before returning. Once the file is written,
// a failure to close the connection does not fail the upload.
func (u *SFTPUploader) Upload(ctx context.Context, localPath, remoteName string) (*UploadReceipt, error) {
	if !u.cfg.Configured() {
		return nil, fmt.Errorf("%w: sftp host, username and a password or private key are required", common.ErrMissingConfig)
	}

	local, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open declaration: %w", err)
	}
	defer func() { _ = local.Close() }()

	clientConfig, err := u.clientConfig()
	if err != nil {
		return nil, err
	}

	sshClient, err := u.dial(ctx, clientConfig)
	if err != nil {
		return nil, err
	}
	defer u.closeConn(sshClient)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("failed to start sftp session: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.MkdirAll(u.cfg.RemotePath); err != nil {
		return nil, fmt.Errorf("failed to prepare remote directory: %w", err)
	}

	remotePath := path.Join(u.cfg.RemotePath, remoteName)
	remote, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote file: %w", err)
	}

	n, copyErr := io.Copy(remote, local)
	closeErr := remote.Close()
	if copyErr != nil {
		return nil, fmt.Errorf("failed to upload declaration: %w", copyErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finish upload: %w", closeErr)
	}

	return &UploadReceipt{RemotePath: remotePath, Bytes: n}, nil
}

func (u *SFTPUploader) closeConn(conn io.Closer) {
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		u.logger.Warn("Failed to close ssh connection", "host", u.cfg.Host, "error", err)
	}
}

func (u *SFTPUploader) dial(ctx context.Context, clientConfig *ssh.ClientConfig) (*ssh.Client, error) {
	addr := net.JoinHostPort(u.cfg.Host, strconv.Itoa(u.cfg.Port))

	ctx, cancel := context.WithTimeout(ctx, clientConfig.Timeout)
	defer cancel()

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// Bound the handshake by the same deadline as the dial.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (u *SFTPUploader) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := u.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := u.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	timeout := u.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &ssh.ClientConfig{
		User:            u.cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// authMethods prefers the private key and falls back to the password.
func (u *SFTPUploader) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if u.cfg.PrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(u.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}

		var signer ssh.Signer
		if u.cfg.PrivateKeyPassphrase.IsSet() {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(u.cfg.PrivateKeyPassphrase.Reveal()))
		} else {
			signer, err = ssh.ParsePrivateKey(pemBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if u.cfg.Password.IsSet() {
		methods = append(methods, ssh.Password(u.cfg.Password.Reveal()))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: sftp needs a password or private key", common.ErrMissingConfig)
	}
	return methods, nil
}

func (u *SFTPUploader) hostKeyCallback() (ssh.HostKeyCallback, error) {
	knownHostsPath := u.cfg.KnownHostsPath
	if knownHostsPath == "" {
		knownHostsPath = config.ExpandPath("~/.ssh/known_hosts")
	}

	callback, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts from %s: %w", knownHostsPath, err)
	}
	return callback, nil
}
