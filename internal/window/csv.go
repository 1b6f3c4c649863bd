package window

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// ContentType is the media type of MarshalCSV output.
const ContentType = "text/csv"

var csvHeader = []string{"timestamp_ms", "ax", "ay", "az"}

// MarshalCSV renders w as a header row followed by one row per sample in
// insertion order. Floats use the shortest decimal that round-trips, so equal
// windows always give identical bytes.
func MarshalCSV(w Window) []byte {
	var buf bytes.Buffer
	buf.Grow(32 * (len(w.Samples) + 1))

	cw := csv.NewWriter(&buf)
	// Writes to a bytes.Buffer cannot fail and no field needs quoting.
	_ = cw.Write(csvHeader)
	row := make([]string, 4)
	for _, s := range w.Samples {
		row[0] = strconv.FormatInt(s.TimestampMs, 10)
		row[1] = formatFloat(s.Ax)
		row[2] = formatFloat(s.Ay)
		row[3] = formatFloat(s.Az)
		_ = cw.Write(row)
	}
	cw.Flush()
	return buf.Bytes()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
