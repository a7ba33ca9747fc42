// Package featureflags evaluates the FEATURE_FLAGS setting, a comma
// separated list such as "signup_otp=on,live_notifications=25%".
package featureflags

import (
	"hash/fnv"
	"maps"
	"slices"
	"strconv"
	"strings"
)

const (
	// SignupOTP stages registration behind an emailed code.
	SignupOTP = "signup_otp"
	// EmailChangeOTP requires a code sent to the new address on email change.
	EmailChangeOTP = "email_change_otp"
	// LiveNotifications enables the notification websocket.
	LiveNotifications = "live_notifications"
)

var defaults = map[string]string{
	SignupOTP:         "on",
	EmailChangeOTP:    "on",
	LiveNotifications: "on",
}

// rollout is the share of accounts, 0 to 100, a flag is on for.
type rollout int

// parseRollout reads on/off, true/false, 1/0 or a percentage. Anything
// else is off.
func parseRollout(value string) rollout {
	switch value {
	case "on", "true", "1":
		return 100
	case "off", "false", "0":
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if !strings.HasSuffix(value, "%") || err != nil {
		return 0
	}
	return rollout(min(max(n, 0), 100))
}

// Manager holds parsed flags. A nil Manager has every flag off.
type Manager struct {
	raw   map[string]string
	rules map[string]rollout
}

func NewManager(config string) *Manager {
	m := &Manager{raw: maps.Clone(defaults), rules: map[string]rollout{}}
	for _, pair := range strings.Split(config, ",") {
		name, value, ok := strings.Cut(pair, "=")
		name, value = fold(name), fold(value)
		if ok && name != "" && value != "" {
			m.raw[name] = value
		}
	}
	for name, value := range m.raw {
		m.rules[name] = parseRollout(value)
	}
	return m
}

// Enabled reports whether the flag is on for userID. Partial rollouts
// put each account in a stable bucket per flag; the anonymous user 0 is
// only included at 100%.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	name = fold(name)
	switch r := m.rules[name]; {
	case r >= 100:
		return true
	case r <= 0 || userID == 0:
		return false
	default:
		return bucket(name, userID) < int(r)
	}
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string { return maps.Clone(m.raw) }

// Flag is one evaluated flag.
type Flag struct {
	Name    string
	Value   string
	Enabled bool
}

// Snapshot evaluates every flag for one account, sorted by name.
func (m *Manager) Snapshot(userID uint) []Flag {
	out := make([]Flag, 0, len(m.raw))
	for _, name := range slices.Sorted(maps.Keys(m.raw)) {
		out = append(out, Flag{Name: name, Value: m.raw[name], Enabled: m.Enabled(name, userID)})
	}
	return out
}

func fold(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func bucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
