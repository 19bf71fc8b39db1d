// Package probe checks that a resolved manifest URL actually serves a
// decodable HLS playlist. Verification is advisory: callers log failures and
// keep the entry.
package probe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/grafov/m3u8"

	"vodharvest/work/client"
)

// maxManifestBytes caps how much of the response is read while decoding.
const maxManifestBytes = 1 << 20

// Prober fetches and decodes manifests.
type Prober struct {
	http *client.HeaderSettingClient
}

// New builds a Prober using the shared header-setting client.
func New(userAgent, referrer string) *Prober {
	return &Prober{http: client.New(userAgent, referrer)}
}

// Verify fetches the manifest and decodes it. Master and media playlists are
// both acceptable.
func (p *Prober) Verify(ctx context.Context, streamURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("manifest returned status %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxManifestBytes)
	_, listType, err := m3u8.DecodeFrom(bufio.NewReader(limited), false)
	if err != nil {
		return fmt.Errorf("decoding manifest: %w", err)
	}

	switch listType {
	case m3u8.MASTER, m3u8.MEDIA:
		return nil
	default:
		return fmt.Errorf("unrecognized playlist type %d", listType)
	}
}
