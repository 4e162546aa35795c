package matrix

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// EndMarker terminates a matrix file.
const EndMarker = "-1"

// WriteTo writes the solver format: N, then N tab-separated rows, then the
// end marker with no trailing newline.
func (m *Matrix) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64

	write := func(s string) error {
		n, err := bw.WriteString(s)
		total += int64(n)
		return err
	}

	if err := write(strconv.Itoa(m.n) + "\n"); err != nil {
		return total, err
	}

	cells := make([]string, m.n)
	for i := 0; i < m.n; i++ {
		for j := 0; j < m.n; j++ {
			cells[j] = strconv.Itoa(m.data[i*m.n+j])
		}
		if err := write(strings.Join(cells, "\t") + "\n"); err != nil {
			return total, err
		}
	}

	if err := write(EndMarker); err != nil {
		return total, err
	}
	return total, bw.Flush()
}

// String renders the matrix in file format.
func (m *Matrix) String() string {
	var sb strings.Builder
	m.WriteTo(&sb)
	return sb.String()
}

// Read parses a matrix written by WriteTo.
func Read(r io.Reader) (*Matrix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	next := func() (string, bool) {
		for sc.Scan() {
			line++
			text := strings.TrimSpace(sc.Text())
			if text != "" {
				return text, true
			}
		}
		return "", false
	}

	head, ok := next()
	if !ok {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: line %d: bad size %q", ErrMalformed, line, head)
	}

	m := newMatrix(n)
	for i := 0; i < n; i++ {
		text, ok := next()
		if !ok {
			return nil, fmt.Errorf("%w: expected %d rows, got %d", ErrMalformed, n, i)
		}
		fields := strings.Split(text, "\t")
		if len(fields) != n {
			return nil, fmt.Errorf("%w: line %d: row %d has %d values, want %d", ErrMalformed, line, i, len(fields), n)
		}
		for j, f := range fields {
			v, err := strconv.Atoi(strings.TrimSpace(f))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
			}
			m.data[i*n+j] = v
		}
	}

	tail, ok := next()
	if !ok || tail != EndMarker {
		return nil, fmt.Errorf("%w: missing %s terminator", ErrMalformed, EndMarker)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
