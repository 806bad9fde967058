package data

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Decode caches. The same timestamp and MAC strings reappear across
// packets on the hot path; memoizing the conversions keeps per-packet
// work flat. Sizes are generous for a controller with hundreds of
// devices and a busy event stream.
var (
	tsCache, _  = lru.New[int64, time.Time](4096)
	macCache, _ = lru.New[string, string](1024)
	keyCache, _ = lru.New[string, string](4096)
)

// Timestamp is an instant carried as milliseconds since epoch on the
// wire. The zero value marshals as JSON null.
type Timestamp struct {
	time.Time
}

// NewTimestamp converts a wall-clock instant, truncating to millisecond
// precision to match the wire resolution.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// TimestampFromMillis converts a ms-epoch value, memoized.
func TimestampFromMillis(ms int64) Timestamp {
	if t, ok := tsCache.Get(ms); ok {
		return Timestamp{t}
	}
	t := time.UnixMilli(ms).UTC()
	tsCache.Add(ms, t)
	return Timestamp{t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, t.UnixMilli(), 10), nil
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	s = strings.Trim(s, `"`)
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some firmware renders floats for sub-ms values.
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("data: timestamp %q: %w", s, err)
		}
		ms = int64(f)
	}
	*t = TimestampFromMillis(ms)
	return nil
}

// NormalizeMAC lowercases a MAC and strips separators. The result must
// be exactly 12 hex digits; anything else is rejected.
func NormalizeMAC(mac string) (string, error) {
	if v, ok := macCache.Get(mac); ok {
		return v, nil
	}
	var b strings.Builder
	b.Grow(12)
	for _, r := range mac {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f':
			b.WriteRune(r)
		case r >= 'A' && r <= 'F':
			b.WriteRune(r + ('a' - 'A'))
		case r == ':', r == '-', r == '.':
		default:
			return "", fmt.Errorf("data: invalid MAC %q", mac)
		}
	}
	v := b.String()
	if len(v) != 12 {
		return "", fmt.Errorf("data: invalid MAC %q", mac)
	}
	macCache.Add(mac, v)
	return v, nil
}

// ParseIP accepts v4 or v6 text. Fields typed v4 on older firmware can
// carry v6 on newer releases, so there is one parser for both.
func ParseIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("data: invalid IP %q: %w", s, err)
	}
	return addr, nil
}

// snakeToCamel converts snake_case wire keys the controller ships
// during schema transitions into the canonical camelCase form.
func snakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	if v, ok := keyCache.Get(key); ok {
		return v
	}
	parts := strings.Split(key, "_")
	var b strings.Builder
	b.Grow(len(key))
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			b.WriteString(p)
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	v := b.String()
	keyCache.Add(key, v)
	return v
}

// canonicalizeKeys rewrites a decoded wire object in place so every key
// is camelCase. When both forms of a key appear, the snake_case value
// wins and the camelCase duplicate is discarded. Applied recursively.
func canonicalizeKeys(m map[string]any) {
	var snakes []string
	for k, v := range m {
		canonicalizeValue(v)
		if strings.Contains(k, "_") {
			snakes = append(snakes, k)
		}
	}
	// Processed after the plain keys so the snake form wins overwrites.
	for _, k := range snakes {
		v := m[k]
		delete(m, k)
		m[snakeToCamel(k)] = v
	}
}

func canonicalizeValue(v any) {
	switch val := v.(type) {
	case map[string]any:
		canonicalizeKeys(val)
	case []any:
		for _, item := range val {
			canonicalizeValue(item)
		}
	}
}

// decodeWireObject unmarshals a JSON object and canonicalizes its keys.
func decodeWireObject(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	canonicalizeKeys(m)
	return m, nil
}
