// Package dump parses equipment parameter dumps.
//
// A dump is tab-delimited text, one parameter per line:
//
//	Module	Part	ItemName	ItemType	ItemValue	Description[	MinSpec	MaxSpec]
//
// Lines starting with '#' and blank lines are ignored. An optional header row
// (third column "ItemName") is skipped.
package dump

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// ErrEmpty is returned when a dump contains no parseable rows.
var ErrEmpty = errors.New("dump: no parameter rows")

// minColumns is the number of columns up to and including ItemValue.
const minColumns = 5

// maxLineBytes bounds a single dump line. Longer lines are skipped with a
// warning.
const maxLineBytes = 1 << 20

// Record is one parsed parameter row.
type Record struct {
	Line        int      `yaml:"line"`
	Module      string   `yaml:"module"`
	Part        string   `yaml:"part"`
	ItemName    string   `yaml:"item_name"`
	ItemType    string   `yaml:"item_type"`
	Value       string   `yaml:"value"`
	Description string   `yaml:"description,omitempty"`
	MinSpec     *float64 `yaml:"min_spec,omitempty"`
	MaxSpec     *float64 `yaml:"max_spec,omitempty"`
}

// Warning describes a line that was skipped or partially ignored.
type Warning struct {
	Line    int    `yaml:"line"`
	Message string `yaml:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// File is a parsed dump.
type File struct {
	Name     string    `yaml:"name"`
	Records  []Record  `yaml:"records"`
	Warnings []Warning `yaml:"warnings,omitempty"`

	index     map[string]int // item name → index into Records (first occurrence)
	indexOnce sync.Once
}

// Parse reads a dump from r. name identifies the dump in warnings and reports.
func Parse(r io.Reader, name string) (*File, error) {
	f := &File{Name: name, index: make(map[string]int)}

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		line, tooLong, err := readLine(br, maxLineBytes)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dump %s: %w", name, err)
		}
		lineNo++
		if tooLong {
			f.warn(lineNo, fmt.Sprintf("line longer than %d bytes skipped", maxLineBytes))
			continue
		}
		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < minColumns {
			f.warn(lineNo, fmt.Sprintf("expected at least %d tab-separated columns, got %d", minColumns, len(cols)))
			continue
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		if len(f.Records) == 0 && strings.EqualFold(cols[2], "ItemName") {
			continue
		}
		if cols[2] == "" {
			f.warn(lineNo, "empty ItemName")
			continue
		}

		rec := Record{
			Line:     lineNo,
			Module:   cols[0],
			Part:     cols[1],
			ItemName: cols[2],
			ItemType: cols[3],
			Value:    cols[4],
		}
		if len(cols) > 5 {
			rec.Description = cols[5]
		}
		if len(cols) > 6 {
			rec.MinSpec = f.parseSpec(lineNo, "MinSpec", cols[6])
		}
		if len(cols) > 7 {
			rec.MaxSpec = f.parseSpec(lineNo, "MaxSpec", cols[7])
		}

		if first, dup := f.index[rec.ItemName]; dup {
			f.warn(lineNo, fmt.Sprintf("duplicate ItemName %q (first seen on line %d, keeping first)",
				rec.ItemName, f.Records[first].Line))
			continue
		}
		f.index[rec.ItemName] = len(f.Records)
		f.Records = append(f.Records, rec)
	}
	if len(f.Records) == 0 {
		return f, ErrEmpty
	}
	return f, nil
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed entirely and reported with tooLong set. err is io.EOF
// once no data remains.
func readLine(br *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// ParseFile opens and parses the dump at path. The file's base name is used
// as the dump name.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer fh.Close()
	return Parse(fh, filepath.Base(path))
}

func (f *File) warn(line int, msg string) {
	f.Warnings = append(f.Warnings, Warning{Line: line, Message: msg})
}

// parseSpec parses an optional numeric spec column. Empty and "-" mean unset.
func (f *File) parseSpec(line int, col, s string) *float64 {
	if s == "" || s == "-" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		f.warn(line, fmt.Sprintf("%s %q is not numeric (ignored)", col, s))
		return nil
	}
	return &v
}

// Values returns the flat ItemName → Value bag used for inspection.
func (f *File) Values() map[string]string {
	out := make(map[string]string, len(f.Records))
	for _, r := range f.Records {
		if _, ok := out[r.ItemName]; !ok {
			out[r.ItemName] = r.Value
		}
	}
	return out
}

// Lookup returns the record for an item name. It is safe for concurrent use;
// on a File built without Parse the index is taken from Records at the first
// call.
func (f *File) Lookup(itemName string) (Record, bool) {
	f.indexOnce.Do(func() {
		if f.index == nil {
			f.reindex()
		}
	})
	i, ok := f.index[itemName]
	if !ok {
		return Record{}, false
	}
	return f.Records[i], true
}

// Names returns all item names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Records))
	for _, r := range f.Records {
		names = append(names, r.ItemName)
	}
	sort.Strings(names)
	return names
}

// reindex rebuilds the lookup index for a File constructed without Parse.
func (f *File) reindex() {
	f.index = make(map[string]int, len(f.Records))
	for i, r := range f.Records {
		if _, ok := f.index[r.ItemName]; !ok {
			f.index[r.ItemName] = i
		}
	}
}
