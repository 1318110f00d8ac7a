package playlist

import (
	"bytes"
	"fmt"

	"anime1-proxy-go/pkg/anime1"
)

// buildM3U8 writes the extended M3U form. Entry URIs always point at this
// server's stream endpoints so expiring upstream URLs never leak into saved
// playlists.
func buildM3U8(cat *anime1.Category, baseURL string) []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	for _, ep := range cat.Episodes {
		fmt.Fprintf(&buf, "#EXTINF:-1,%s\n", sanitizeLine(ep.Title))
		buf.WriteString(EpisodeStreamURL(baseURL, ep.ID))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
