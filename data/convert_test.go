package data

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampRoundTrip(t *testing.T) {
	ts := TimestampFromMillis(1700000000123)
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "1700000000123", string(raw))

	var back Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, ts.Equal(back.Time))
}

func TestTimestampNull(t *testing.T) {
	var ts Timestamp
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))

	require.NoError(t, json.Unmarshal([]byte("null"), &ts))
	assert.True(t, ts.IsZero())
}

func TestTimestampAcceptsFloat(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte("1700000000123.0"), &ts))
	assert.Equal(t, int64(1700000000123), ts.UnixMilli())
}

func TestTimestampMillisecondPrecision(t *testing.T) {
	now := time.Now()
	ts := NewTimestamp(now)
	raw, err := json.Marshal(ts)
	require.NoError(t, err)
	var back Timestamp
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, now.UnixMilli(), back.UnixMilli())
}

func TestNormalizeMAC(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"AA:BB:CC:DD:EE:FF", "aabbccddeeff", true},
		{"aa-bb-cc-dd-ee-ff", "aabbccddeeff", true},
		{"aabb.ccdd.eeff", "aabbccddeeff", true},
		{"aabbccddeeff", "aabbccddeeff", true},
		{"aabbccddee", "", false},
		{"aabbccddeefff0", "", false},
		{"zzbbccddeeff", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := NormalizeMAC(tc.in)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseIP(t *testing.T) {
	v4, err := ParseIP("192.168.1.10")
	require.NoError(t, err)
	assert.True(t, v4.Is4())

	v6, err := ParseIP("fe80::1")
	require.NoError(t, err)
	assert.True(t, v6.Is6())

	_, err = ParseIP("not-an-ip")
	assert.Error(t, err)
}

func TestSnakeToCamel(t *testing.T) {
	cases := map[string]string{
		"is_motion_detected": "isMotionDetected",
		"camera":             "camera",
		"last_seen":          "lastSeen",
		"alreadyCamel":       "alreadyCamel",
		"_leading":           "Leading",
		"trailing_":          "trailing",
	}
	for in, want := range cases {
		assert.Equal(t, want, snakeToCamel(in), in)
	}
}

func TestCanonicalizeKeysSnakeWins(t *testing.T) {
	m := map[string]any{
		"isMotionDetected": false,
		"is_motion_detected": true,
		"nested": map[string]any{
			"up_since": float64(123),
		},
	}
	canonicalizeKeys(m)

	assert.Equal(t, true, m["isMotionDetected"])
	_, hasSnake := m["is_motion_detected"]
	assert.False(t, hasSnake)

	nested := m["nested"].(map[string]any)
	assert.Equal(t, float64(123), nested["upSince"])
}

func TestDecodeWireObjectCanonicalizes(t *testing.T) {
	m, err := decodeWireObject([]byte(`{"last_motion":1700000000000,"name":"door"}`))
	require.NoError(t, err)
	assert.Contains(t, m, "lastMotion")
	assert.NotContains(t, m, "last_motion")
	assert.Equal(t, "door", m["name"])
}
