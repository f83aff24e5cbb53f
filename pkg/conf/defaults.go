package conf

import "time"

const (
	// Timeout acts as the general command execution default value
	Timeout = 30 * time.Second

	// QuickTimeout is the default for the read-only execution path
	// (listings, stat, cat) that never waits on prompts
	QuickTimeout = 10 * time.Second

	// ConnectTimeout bounds channel establishment (dial + handshake + shell)
	ConnectTimeout = 15 * time.Second

	// Keepalive acts as the general KeepAlive default value
	Keepalive = 60 * time.Second

	// MinKeepAlive is the minimum keepalive allowed duration
	MinKeepAlive = 5 * time.Second

	// SettleDelay is how long the credential injector waits after a
	// prompt match before writing, so the remote side has flushed
	SettleDelay = 100 * time.Millisecond

	// Channel read buffering

	ReadBufferSize = 4 * 1024

	// MaxCaptureSize caps the output accumulated for a single command
	MaxCaptureSize = 4 * 1024 * 1024

	// File operation limits

	// InlineWriteThreshold is the largest content written through a
	// single quoted printf; larger payloads go through a heredoc
	InlineWriteThreshold = 2 * 1024

	// FileTransferCap bounds read/write payloads moved through the shell
	FileTransferCap = 8 * 1024 * 1024

	// EncodedLineWidth is the column width of heredoc base64 chunks
	EncodedLineWidth = 76

	// MaxSearchResults caps find output per search
	MaxSearchResults = 500

	// File size constants for display formatting

	BytesPerKB = 1024
	BytesPerMB = 1024 * 1024
	BytesPerGB = 1024 * 1024 * 1024

	// SFTPBufferSize is the buffer size for SFTP file transfers (32KB)
	SFTPBufferSize = 32 * 1024

	// Terminal size

	DefaultTerminalWidth  = 80
	DefaultTerminalHeight = 24

	// Network defaults

	DefaultSSHPort  = 22
	DefaultHTTPPort = 8090
)
