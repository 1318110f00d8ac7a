package playlist

import (
	"bytes"
	"fmt"
)

// buildDPL writes a PotPlayer DAUMPLAYLIST. The format is line-based:
// a fixed header, then numbered "<i>*title*" / "<i>*file*" pairs.
func buildDPL(entries []entry) []byte {
	var buf bytes.Buffer
	buf.WriteString("DAUMPLAYLIST\n")
	buf.WriteString("topindex=0\n")
	buf.WriteString("saveplaypos=0\n")
	for i, e := range entries {
		fmt.Fprintf(&buf, "%d*title*%s\n", i+1, sanitizeLine(e.Title))
		fmt.Fprintf(&buf, "%d*file*%s\n", i+1, sanitizeLine(e.Location))
	}
	return buf.Bytes()
}
