package interfaces

import "context"

// DownloadProgress is a point-in-time view of a running download
type DownloadProgress struct {
	BytesReceived int64 `json:"bytes_received"`
	TotalBytes    int64 `json:"total_bytes"` // -1 when the server did not send a length
	Paused        bool  `json:"paused"`
}

// DownloadResult is the outcome of a finished download
type DownloadResult struct {
	Success  bool
	FilePath string
	Err      error
}

// DownloadHandle controls one download started by DownloadService
type DownloadHandle interface {
	Progress() DownloadProgress
	Pause()
	Resume()
	Cancel()
	// Wait blocks until the download finishes, fails or is cancelled
	Wait() DownloadResult
}

// DownloadService fetches remote images referenced by rows
type DownloadService interface {
	// ResolveLink turns a cloud share link into a direct download URL.
	// Other URLs are returned unchanged.
	ResolveLink(ctx context.Context, url string) (string, error)
	// Download starts fetching url into destDir. Cancelling ctx cancels the download.
	Download(ctx context.Context, url string, destDir string) DownloadHandle
}
