package labels

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/menta2k/boxlabel/pkg/types"
)

// ParseYOLO reads "class x_center y_center width height" lines.
// Blank lines and lines starting with # are skipped.
func ParseYOLO(r io.Reader) ([]types.Box, error) {
	boxes := []types.Box{}
	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		if len(fields) != 5 {
			return nil, fmt.Errorf("line %d: expected 5 fields, got %d", line, len(fields))
		}

		classID, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid class id %q: %w", line, fields[0], err)
		}

		var v [4]float64
		for i := range v {
			v[i], err = strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid coordinate %q: %w", line, fields[i+1], err)
			}
		}

		boxes = append(boxes, types.Box{
			ClassID: classID,
			XCenter: v[0],
			YCenter: v[1],
			Width:   v[2],
			Height:  v[3],
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return boxes, nil
}

// FormatYOLO writes one line per box. Coordinates use the shortest decimal
// that parses back to the same float, so clamped edges stay inside [0,1].
func FormatYOLO(w io.Writer, boxes []types.Box) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 96)
	for _, b := range boxes {
		buf = strconv.AppendInt(buf[:0], int64(b.ClassID), 10)
		for _, v := range [4]float64{b.XCenter, b.YCenter, b.Width, b.Height} {
			buf = append(buf, ' ')
			buf = strconv.AppendFloat(buf, v, 'f', -1, 64)
		}
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}
