package server

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"sort"
	"strings"

	"github.com/emsm/emsm/internal/util"
)

// MergeProperties sets props in the key=value file at path. Existing keys
// are rewritten in place; other lines, comments included, are kept; new
// keys are appended in sorted order. A missing file is created.
func MergeProperties(path string, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	done := make(map[string]bool, len(props))
	var out bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		key := propertyKey(line)
		if v, ok := props[key]; ok && key != "" {
			line = key + "=" + v
			done[key] = true
		}
		out.WriteString(line + "\n")
	}
	if err := sc.Err(); err != nil {
		return err
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		if !done[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.WriteString(k + "=" + props[k] + "\n")
	}
	return util.AtomicWriteFile(path, out.Bytes(), 0644)
}

func propertyKey(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "!") {
		return ""
	}
	key, _, ok := strings.Cut(trimmed, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(key)
}
