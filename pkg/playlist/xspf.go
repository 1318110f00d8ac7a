package playlist

import (
	"encoding/xml"

	"anime1-proxy-go/pkg/anime1"
)

// xspfPlaylist mirrors the XSPF 1.0 document structure. encoding/xml takes
// care of escaping titles and locations.
type xspfPlaylist struct {
	XMLName xml.Name    `xml:"playlist"`
	Version string      `xml:"version,attr"`
	Xmlns   string      `xml:"xmlns,attr"`
	Title   string      `xml:"title"`
	Tracks  []xspfTrack `xml:"trackList>track"`
}

type xspfTrack struct {
	Location string `xml:"location"`
	Title    string `xml:"title"`
}

func buildXSPF(cat *anime1.Category, entries []entry) ([]byte, error) {
	doc := xspfPlaylist{
		Version: "1",
		Xmlns:   "http://xspf.org/ns/0/",
		Title:   cat.Title,
		Tracks:  make([]xspfTrack, 0, len(entries)),
	}
	for _, e := range entries {
		doc.Tracks = append(doc.Tracks, xspfTrack{
			Location: e.Location,
			Title:    e.Title,
		})
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
