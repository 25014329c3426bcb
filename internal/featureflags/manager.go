package featureflags

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

type flagMode int

const (
	modeOff flagMode = iota
	modeOn
	modePercent
)

// flagState is a flag value parsed once at construction. raw keeps the
// original text for Raw and startup logging.
type flagState struct {
	raw     string
	mode    flagMode
	percent int
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "pause_publishing=on,verbose_ticks=off,tweet_cache=50%"
type Manager struct {
	flags map[string]flagState
}

// NewManager creates a feature-flag manager from a comma-separated config string.
func NewManager(raw string) *Manager {
	out := make(map[string]flagState)

	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = normalize(key)
		value = normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = parseValue(value)
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given subject id
// (a tweet id for per-post rollouts, 0 for global checks).
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic subject rollout, e.g. 25%)
func (m *Manager) Enabled(name string, subjectID uint) bool {
	if m == nil {
		return false
	}

	st, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch st.mode {
	case modeOn:
		return true
	case modePercent:
		if subjectID == 0 {
			return false
		}
		return rolloutBucket(name, subjectID) < st.percent
	default:
		return false
	}
}

// Raw returns a copy of configured flags as written in the config string.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.flags))
	for k, st := range m.flags {
		out[k] = st.raw
	}
	return out
}

// Snapshot evaluates every configured flag for a subject. Used at startup
// to log the effective flag state.
func (m *Manager) Snapshot(subjectID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, subjectID)
	}
	return out
}

// parseValue classifies a normalized flag value. Percentages at or past the
// boundaries collapse to plain on/off; unrecognized values are off.
func parseValue(value string) flagState {
	switch value {
	case "on", "true", "1":
		return flagState{raw: value, mode: modeOn}
	case "off", "false", "0":
		return flagState{raw: value, mode: modeOff}
	}

	if pctRaw, ok := strings.CutSuffix(value, "%"); ok {
		pct, err := strconv.Atoi(pctRaw)
		switch {
		case err != nil || pct <= 0:
			return flagState{raw: value, mode: modeOff}
		case pct >= 100:
			return flagState{raw: value, mode: modeOn}
		default:
			return flagState{raw: value, mode: modePercent, percent: pct}
		}
	}

	return flagState{raw: value, mode: modeOff}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, subjectID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fmt.Sprintf("%s:%d", normalize(name), subjectID)))
	return int(h.Sum32() % 100)
}
