//Package plumed talks to PLUMED: it reads and writes COLVAR-style tables,
//wraps the "plumed driver" reweighting round-trip behind the
//bootstrap.Driver interface, and handles the flat array files and summary
//reports an analysis run leaves behind. Nothing in here does statistics;
//the numerical core never touches the file system or external processes.
package plumed

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

//Table is a COLVAR-style table: named columns of equal length, as produced
//by PLUMED's PRINT action and read back from files with a "#! FIELDS ..."
//header line.
type Table struct {
	Fields []string
	cols   [][]float64
}

//Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}

//Col returns the column with the given field name. The returned slice
//aliases the table.
func (t *Table) Col(name string) ([]float64, error) {
	for i, f := range t.Fields {
		if f == name {
			return t.cols[i], nil
		}
	}
	return nil, fmt.Errorf("plumed: table has no field %q (has %s)", name, strings.Join(t.Fields, " "))
}

//Tail returns the last n values of the named column, the usual alignment
//step when concatenated records of different lengths must be compared.
func (t *Table) Tail(name string, n int) ([]float64, error) {
	c, err := t.Col(name)
	if err != nil {
		return nil, err
	}
	if len(c) < n {
		return nil, fmt.Errorf("plumed: field %q has %d rows, need %d", name, len(c), n)
	}
	return c[len(c)-n:], nil
}

//openDecompressed opens path, transparently decoding gzip and zstd by file
//extension.
func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(path, ".gz"):
		g, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedCloser{g, f}, nil
	case strings.HasSuffix(path, ".zst"):
		z, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &stackedCloser{z.IOReadCloser(), f}, nil
	}
	return f, nil
}

type stackedCloser struct {
	io.ReadCloser
	f *os.File
}

func (s *stackedCloser) Close() error {
	err := s.ReadCloser.Close()
	if err2 := s.f.Close(); err == nil {
		err = err2
	}
	return err
}

//ReadTable parses a COLVAR file. The first "#! FIELDS" line names the
//columns; later comment lines ("#! SET ...", plain "#") are skipped.
//Compressed files (.gz, .zst) are decoded transparently.
func ReadTable(path string) (*Table, error) {
	r, err := openDecompressed(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	t := &Table{}
	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scan.Scan() {
		line++
		text := strings.TrimSpace(scan.Text())
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "#") {
			if t.Fields == nil && strings.HasPrefix(text, "#!") {
				w := strings.Fields(text)
				if len(w) > 2 && w[1] == "FIELDS" {
					t.Fields = w[2:]
					t.cols = make([][]float64, len(t.Fields))
				}
			}
			continue
		}
		if t.Fields == nil {
			return nil, fmt.Errorf("plumed: %s:%d: data before any #! FIELDS header", path, line)
		}
		w := strings.Fields(text)
		if len(w) != len(t.Fields) {
			return nil, fmt.Errorf("plumed: %s:%d: %d values for %d fields", path, line, len(w), len(t.Fields))
		}
		for i, s := range w {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("plumed: %s:%d: %w", path, line, err)
			}
			t.cols[i] = append(t.cols[i], v)
		}
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("plumed: reading %s: %w", path, err)
	}
	if t.Fields == nil {
		return nil, fmt.Errorf("plumed: %s has no #! FIELDS header", path)
	}
	return t, nil
}

//WriteTable writes the named columns, which must be of equal length, as a
//COLVAR file that PLUMED's driver can read back. A ".gz" or ".zst" path
//gets compressed accordingly.
func WriteTable(path string, fields []string, cols ...[]float64) error {
	if len(fields) != len(cols) {
		return fmt.Errorf("plumed: %d field names for %d columns", len(fields), len(cols))
	}
	n := 0
	for i, c := range cols {
		if i == 0 {
			n = len(c)
		} else if len(c) != n {
			return fmt.Errorf("plumed: column %q has %d rows, others have %d", fields[i], len(c), n)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var finish func() error
	switch {
	case strings.HasSuffix(path, ".gz"):
		g := gzip.NewWriter(f)
		w = g
		finish = g.Close
	case strings.HasSuffix(path, ".zst"):
		z, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return err
		}
		w = z
		finish = z.Close
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "#! FIELDS %s\n", strings.Join(fields, " "))
	for i := 0; i < n; i++ {
		for j := range cols {
			if j > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(strconv.FormatFloat(cols[j][i], 'f', 6, 64))
		}
		bw.WriteByte('\n')
	}
	err = bw.Flush()
	if finish != nil {
		if err2 := finish(); err == nil {
			err = err2
		}
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	return err
}
