package dust

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/docker/go-units"
)

// Node is one element of dust's JSON tree.
type Node struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	Size     Size   `json:"size"`
	Bytes    Size   `json:"bytes,omitempty"`
	Children []Node `json:"children"`
}

// byteCount returns the node size, preferring an explicit byte count.
func (n Node) byteCount() int64 {
	if n.Bytes > 0 {
		return int64(n.Bytes)
	}
	return int64(n.Size)
}

// Size decodes either a JSON number or a human-readable size string.
type Size int64

// UnmarshalJSON implements json.Unmarshaler. Unparseable values decode to 0.
func (s *Size) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			*s = 0
			return nil
		}
		*s = Size(ParseSize(str))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil || f < 0 {
		*s = 0
		return nil
	}
	*s = Size(f)
	return nil
}

// ParseSize converts a human size such as "12.3 GB", "1.2G" or "512" into
// bytes using 1024-based units. Invalid input yields 0.
func ParseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := units.RAMInBytes(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
