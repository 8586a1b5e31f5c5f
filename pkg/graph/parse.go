package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// FormatError reports a line that is not two whitespace separated integers
type FormatError struct {
	Line int    // 1-based
	Text string // raw line as read
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid data format at line %d: '%s'", e.Line, e.Text)
}

// Parse reads an edge list, one "userA userB" pair per line. The first
// malformed line aborts parsing and no partial result is returned.
// Empty content yields an empty edge list.
func Parse(content []byte) (*EdgeList, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	list := NewEdgeList()

	scanner := bufio.NewScanner(bytes.NewReader(content))
	// Input is fully buffered, so no line can exceed its length
	bufSize := len(content) + 1
	if bufSize < 4096 {
		bufSize = 4096
	}
	scanner.Buffer(make([]byte, 0, 4096), bufSize)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()

		from, to, ok := parseLine(line)
		if !ok {
			return nil, &FormatError{Line: lineNumber, Text: line}
		}
		list.AddEdge(from, to)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read edge list: %w", err)
	}

	return list, nil
}

func parseLine(line string) (int64, int64, bool) {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return 0, 0, false
	}

	from, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	to, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}

	return from, to, true
}
