package ssh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// createSFTPClient opens an SFTP session on the connection.
func (c *Client) createSFTPClient() (*sftp.Client, error) {
	sshClient, err := c.getClient()
	if err != nil {
		return nil, err
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, &TransportError{
			Op:          "sftp-init",
			Host:        c.config.Address(),
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	return sftpClient, nil
}

// Upload writes data to remotePath, creating parent directories. The file
// is written under a temporary name and renamed into place.
func (c *Client) Upload(ctx context.Context, data []byte, remotePath string, mode os.FileMode) error {
	log.Debug().
		Str("remote", remotePath).
		Int("bytes", len(data)).
		Msg("uploading file")

	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	fail := func(err error) error {
		return &TransportError{Op: "upload", Host: c.config.Address(), Err: err}
	}

	if err := sftpClient.MkdirAll(path.Dir(remotePath)); err != nil {
		return fail(fmt.Errorf("failed to create remote directory: %w", err))
	}

	tmpPath := remotePath + ".part"
	remoteFile, err := sftpClient.Create(tmpPath)
	if err != nil {
		return fail(fmt.Errorf("failed to create remote file: %w", err))
	}

	if _, err := copyWithContext(ctx, remoteFile, bytes.NewReader(data)); err != nil {
		_ = remoteFile.Close()
		_ = sftpClient.Remove(tmpPath)
		return fail(fmt.Errorf("failed to write remote file: %w", err))
	}
	if err := remoteFile.Chmod(mode); err != nil {
		_ = remoteFile.Close()
		return fail(fmt.Errorf("failed to set permissions: %w", err))
	}
	if err := remoteFile.Close(); err != nil {
		return fail(fmt.Errorf("failed to close remote file: %w", err))
	}

	// PosixRename replaces an existing target atomically.
	if err := sftpClient.PosixRename(tmpPath, remotePath); err != nil {
		return fail(fmt.Errorf("failed to move file into place: %w", err))
	}

	return nil
}

// Checksum returns the hex sha256 of a remote file.
func (c *Client) Checksum(ctx context.Context, remotePath string) (string, error) {
	sftpClient, err := c.createSFTPClient()
	if err != nil {
		return "", err
	}
	defer sftpClient.Close()

	f, err := sftpClient.Open(remotePath)
	if err != nil {
		return "", &TransportError{Op: "checksum", Host: c.config.Address(), Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := copyWithContext(ctx, h, f); err != nil {
		return "", &TransportError{Op: "checksum", Host: c.config.Address(), Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyWithContext copies in chunks and stops when ctx is done.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
