package report

// frontmatter.go — YAML frontmatter between --- delimiters on markdown
// reports.

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// splitFrontmatter splits a markdown document into its frontmatter (raw YAML
// bytes) and body. The document must begin with "---\n".
func splitFrontmatter(data []byte) (fm []byte, body []byte, err error) {
	const delim = "---\n"
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(data, []byte(delim)) {
		return nil, nil, fmt.Errorf("frontmatter: missing opening --- delimiter")
	}
	rest := data[len(delim):]
	var idx int
	if bytes.HasPrefix(rest, []byte(delim)) {
		idx = -1 // empty block
	} else if idx = bytes.Index(rest, []byte("\n---")); idx < 0 {
		return nil, nil, fmt.Errorf("frontmatter: missing closing --- delimiter")
	}
	fm = rest[:idx+1]
	tail := rest[idx+1+len("---"):]
	if len(tail) > 0 && tail[0] == '\n' {
		tail = tail[1:]
	}
	return fm, tail, nil
}

// withFrontmatter marshals v as YAML frontmatter followed by body.
func withFrontmatter(v any, body string) ([]byte, error) {
	fm, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("frontmatter: marshal: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(fm)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}
