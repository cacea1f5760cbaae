package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseIDList parses a comma separated list of Telegram user ids.
// Blank entries are skipped and duplicates collapsed, keeping first order.
//   - "1, 2,,3" → [1 2 3]
//   - "1,x"     → error
func ParseIDList(s string) ([]int64, error) {
	var out []int64
	seen := make(map[int64]struct{})
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", part)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
