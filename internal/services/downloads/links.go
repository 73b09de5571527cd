package downloads

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// ResolveLink rewrites Google Drive, Dropbox and OneDrive share links into
// direct download URLs. Other URLs are returned unchanged.
func (s *Service) ResolveLink(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("invalid url %q: expected http or https", rawURL)
	}

	host := strings.ToLower(u.Hostname())
	resolved := u.String()

	switch {
	case host == "drive.google.com" || host == "docs.google.com":
		id := googleDriveID(u)
		if id == "" {
			return "", fmt.Errorf("google drive link %q has no file id", rawURL)
		}
		resolved = "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)

	case host == "dropbox.com" || strings.HasSuffix(host, ".dropbox.com"):
		q := u.Query()
		q.Set("dl", "1")
		u.RawQuery = q.Encode()
		resolved = u.String()

	case host == "1drv.ms" || host == "onedrive.live.com":
		q := u.Query()
		q.Set("download", "1")
		u.RawQuery = q.Encode()
		resolved = u.String()
	}

	if resolved != rawURL {
		s.logger.Debug().Str("url", rawURL).Str("resolved", resolved).Msg("Share link resolved")
	}
	return resolved, nil
}

// googleDriveID extracts the file id from /file/d/<id>/..., open?id= and uc?id= links
func googleDriveID(u *url.URL) string {
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "d" {
			return parts[i+1]
		}
	}
	return u.Query().Get("id")
}
