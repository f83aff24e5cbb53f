// Package transfer moves files between the operator host and a target.
// Remote targets ride the SFTP subsystem multiplexed onto the session's
// SSH transport; local targets copy directly on disk. Either way the
// caller gets the same capped, progress-reporting single-file API.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"velo/pkg/channel"
	"velo/pkg/conf"
	"velo/pkg/session"
	"velo/pkg/verrors"
	"velo/pkg/vlog"

	"github.com/pkg/sftp"
)

// Progress receives the cumulative bytes moved and the expected total.
// The total is -1 when it is not known up front.
type Progress func(written, total int64)

// Client moves files for one session. Close it when done; closing does
// not touch the session's own transport.
type Client struct {
	target string
	sftp   *sftp.Client
	limit  int64
	logger *vlog.Logger
}

// New opens a transfer client for a connected session. Sessions on an
// SSH channel get an SFTP subsystem; local sessions copy on disk.
func New(sess *session.Session, logger *vlog.Logger) (*Client, error) {
	ch := sess.Channel()
	if ch == nil {
		return nil, fmt.Errorf("session %s is not connected", sess.ID())
	}

	c := &Client{
		target: sess.Target(),
		logger: logger,
	}

	provider, ok := ch.(channel.ClientProvider)
	if !ok {
		// Local shell, plain disk I/O
		return c, nil
	}

	sftpClient, err := sftp.NewClient(provider.Client(),
		sftp.MaxPacket(conf.SFTPBufferSize))
	if err != nil {
		return nil, &verrors.ConnectionError{Target: c.target, Err: err}
	}
	c.sftp = sftpClient

	return c, nil
}

// Remote reports whether transfers go over SFTP rather than local disk
func (c *Client) Remote() bool {
	return c.sftp != nil
}

// SetLimit caps the byte size of a single transfer. Zero means
// unlimited.
func (c *Client) SetLimit(n int64) {
	c.limit = n
}

// Close releases the SFTP subsystem, if one was opened
func (c *Client) Close() error {
	if c.sftp == nil {
		return nil
	}
	return c.sftp.Close()
}

// Stat returns metadata for a path on the target
func (c *Client) Stat(remotePath string) (os.FileInfo, error) {
	var info os.FileInfo
	var err error
	if c.sftp != nil {
		info, err = c.sftp.Stat(remotePath)
	} else {
		info, err = os.Stat(remotePath)
	}
	if err != nil {
		return nil, &verrors.OperationError{
			Op:      "stat",
			Paths:   []string{remotePath},
			Message: err.Error(),
		}
	}
	return info, nil
}

// Upload copies a local file onto the target, creating the destination
// parent directory if needed. Partial destination files are removed on
// failure.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, progress Progress) (int64, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return 0, opErr("upload", localPath, remotePath, err)
	}
	defer func() { _ = src.Close() }()

	srcInfo, err := src.Stat()
	if err != nil {
		return 0, opErr("upload", localPath, remotePath, err)
	}
	if srcInfo.IsDir() {
		return 0, opErr("upload", localPath, remotePath,
			fmt.Errorf("%s is a directory", localPath))
	}
	if c.limit > 0 && srcInfo.Size() > c.limit {
		return 0, opErr("upload", localPath, remotePath,
			fmt.Errorf("size %d exceeds transfer limit %d", srcInfo.Size(), c.limit))
	}

	dst, cleanup, err := c.createDestination(remotePath)
	if err != nil {
		return 0, opErr("upload", localPath, remotePath, err)
	}

	written, err := copyChunked(ctx, dst, src, srcInfo.Size(), progress)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return written, opErr("upload", localPath, remotePath, err)
	}

	c.chmodDestination(remotePath, srcInfo.Mode())
	c.logger.DebugWith("Upload complete",
		vlog.F("target", c.target),
		vlog.F("path", remotePath),
		vlog.F("bytes", written))

	return written, nil
}

// Download copies a file from the target into a local path, creating
// parent directories as needed. Partial local files are removed on
// failure.
func (c *Client) Download(ctx context.Context, remotePath, localPath string, progress Progress) (int64, error) {
	srcInfo, err := c.Stat(remotePath)
	if err != nil {
		return 0, err
	}
	if srcInfo.IsDir() {
		return 0, opErr("download", remotePath, localPath,
			fmt.Errorf("%s is a directory", remotePath))
	}
	if c.limit > 0 && srcInfo.Size() > c.limit {
		return 0, opErr("download", remotePath, localPath,
			fmt.Errorf("size %d exceeds transfer limit %d", srcInfo.Size(), c.limit))
	}

	var src io.ReadCloser
	if c.sftp != nil {
		src, err = c.sftp.Open(remotePath)
	} else {
		src, err = os.Open(remotePath)
	}
	if err != nil {
		return 0, opErr("download", remotePath, localPath, err)
	}
	defer func() { _ = src.Close() }()

	if mkErr := os.MkdirAll(filepath.Dir(localPath), 0755); mkErr != nil {
		return 0, opErr("download", remotePath, localPath, mkErr)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return 0, opErr("download", remotePath, localPath, err)
	}

	written, err := copyChunked(ctx, dst, src, srcInfo.Size(), progress)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(localPath)
		return written, opErr("download", remotePath, localPath, err)
	}

	_ = os.Chmod(localPath, srcInfo.Mode().Perm())
	c.logger.DebugWith("Download complete",
		vlog.F("target", c.target),
		vlog.F("path", remotePath),
		vlog.F("bytes", written))

	return written, nil
}

// createDestination opens the upload target for writing, with a cleanup
// that removes the partial file on failure
func (c *Client) createDestination(remotePath string) (io.WriteCloser, func(), error) {
	if c.sftp != nil {
		if err := c.sftp.MkdirAll(path.Dir(remotePath)); err != nil {
			return nil, nil, err
		}
		f, err := c.sftp.Create(remotePath)
		if err != nil {
			return nil, nil, err
		}
		return f, func() { _ = c.sftp.Remove(remotePath) }, nil
	}

	if err := os.MkdirAll(filepath.Dir(remotePath), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(remotePath)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = os.Remove(remotePath) }, nil
}

// chmodDestination carries the source file mode over, best effort
func (c *Client) chmodDestination(remotePath string, mode os.FileMode) {
	if c.sftp != nil {
		_ = c.sftp.Chmod(remotePath, mode.Perm())
		return
	}
	_ = os.Chmod(remotePath, mode.Perm())
}

// copyChunked moves data in transfer-sized chunks, reporting cumulative
// progress after each chunk and honoring context cancellation between
// chunks.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader, total int64, progress Progress) (int64, error) {
	buf := make([]byte, conf.SFTPBufferSize)
	var written int64
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		n, rErr := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			written += int64(w)
			if wErr != nil {
				return written, wErr
			}
			if w < n {
				return written, io.ErrShortWrite
			}
			if progress != nil {
				progress(written, total)
			}
		}
		if rErr == io.EOF {
			return written, nil
		}
		if rErr != nil {
			return written, rErr
		}
	}
}

func opErr(op, src, dst string, err error) error {
	return &verrors.OperationError{
		Op:      op,
		Paths:   []string{src, dst},
		Message: err.Error(),
	}
}
