package hawk

import (
	"fmt"
	"strconv"
	"strings"
)

// Header is a parsed Authorization header
type Header struct {
	ID        string
	Timestamp int64
	Nonce     string
	MAC       string
	Ext       string
}

// ParseHeader parses a header of the form produced by FormatHeader
func ParseHeader(value string) (*Header, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "hawk") {
		return nil, fmt.Errorf("%w: not a hawk authorization", ErrInvalidHeader)
	}

	attrs := make(map[string]string)
	for _, item := range strings.Split(rest, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		k, v, ok := strings.Cut(item, "=")
		if !ok || len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
			return nil, fmt.Errorf("%w: bad attribute %q", ErrInvalidHeader, item)
		}
		switch k {
		case "id", "ts", "nonce", "mac", "ext":
		default:
			return nil, fmt.Errorf("%w: unknown attribute %q", ErrInvalidHeader, k)
		}
		if _, dup := attrs[k]; dup {
			return nil, fmt.Errorf("%w: duplicate attribute %q", ErrInvalidHeader, k)
		}
		attrs[k] = v[1 : len(v)-1]
	}

	for _, k := range []string{"id", "ts", "nonce", "mac"} {
		if attrs[k] == "" {
			return nil, fmt.Errorf("%w: missing %s", ErrInvalidHeader, k)
		}
	}

	ts, err := strconv.ParseInt(attrs["ts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ts %q", ErrInvalidHeader, attrs["ts"])
	}

	return &Header{
		ID:        attrs["id"],
		Timestamp: ts,
		Nonce:     attrs["nonce"],
		MAC:       attrs["mac"],
		Ext:       attrs["ext"],
	}, nil
}
