package util

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ExpandRange expands a port id list into individual values.
// Supports formats like:
//   - "1-5" -> [1, 2, 3, 4, 5]
//   - "1,3,5" -> [1, 3, 5]
//   - "1-3,5,7-9" -> [1, 2, 3, 5, 7, 8, 9]
func ExpandRange(spec string) ([]uint32, error) {
	if spec == "" {
		return nil, nil
	}

	var result []uint32
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		start, err := parseID(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid value in %s: %v", part, err)
		}
		end := start
		if isRange {
			if end, err = parseID(hi); err != nil {
				return nil, fmt.Errorf("invalid end value in range %s: %v", part, err)
			}
			if start > end {
				return nil, fmt.Errorf("start value %d greater than end value %d in range %s", start, end, part)
			}
		}
		for i := start; i <= end; i++ {
			result = append(result, i)
			if i == end {
				break
			}
		}
	}

	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return dedupIDs(result), nil
}

// CompactRange compacts a list of ids into range notation
// [1, 2, 3, 5, 7, 8, 9] -> "1-3,5,7-9"
func CompactRange(values []uint32) string {
	if len(values) == 0 {
		return ""
	}

	sorted := make([]uint32, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	sorted = dedupIDs(sorted)

	var parts []string
	start, end := sorted[0], sorted[0]
	for _, v := range sorted[1:] {
		if v == end+1 {
			end = v
			continue
		}
		parts = append(parts, formatRange(start, end))
		start, end = v, v
	}
	parts = append(parts, formatRange(start, end))

	return strings.Join(parts, ",")
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func formatRange(start, end uint32) string {
	if start == end {
		return strconv.FormatUint(uint64(start), 10)
	}
	return fmt.Sprintf("%d-%d", start, end)
}

func dedupIDs(sorted []uint32) []uint32 {
	if len(sorted) == 0 {
		return sorted
	}
	result := []uint32{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			result = append(result, sorted[i])
		}
	}
	return result
}
