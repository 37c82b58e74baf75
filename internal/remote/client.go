package remote

import (
	"context"
	"time"
)

// ConnectionConfig carries everything needed to open one connection to the
// deployment server's file API.
type ConnectionConfig struct {
	ServerURL  string
	Username   string
	Password   string
	RemoteRoot string
	Timeout    time.Duration
}

// Entry describes one remote file or directory returned by ListDirectory.
type Entry struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
	ModTime time.Time `json:"mod_time"`
}

// Client is the narrow contract the transfer engine and the orchestrator
// depend on. Implementations are not safe for concurrent use; the engine
// leases each client to exactly one worker at a time.
type Client interface {
	// Connect opens the session and verifies credentials.
	Connect(ctx context.Context) error

	// IsConnected reports whether the session is still usable.
	IsConnected() bool

	// UploadFile transfers one local file to remotePath. It returns false
	// when the remote file already exists and overwrite is disabled.
	UploadFile(ctx context.Context, localPath, remotePath string, overwrite, createDirs bool) (bool, error)

	// ListDirectory lists the remote directory recursively.
	ListDirectory(ctx context.Context, path string) ([]Entry, error)

	// DeleteFile removes one remote file.
	DeleteFile(ctx context.Context, path string) error

	// Close releases the session. Safe to call more than once.
	Close() error
}

// Factory materializes new clients; the transfer engine uses it to grow its
// connection pool up to the concurrency bound.
type Factory interface {
	NewClient(cfg ConnectionConfig) (Client, error)
}
