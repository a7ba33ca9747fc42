package views

import (
	"html/template"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Funcs returns the helpers available in every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"stars":     Stars,
		"rating":    formatRating,
		"date":      func(t time.Time) string { return t.Format("Jan 2, 2006") },
		"lines":     Lines,
		"embedURL":  EmbedURL,
		"ratings":   func() []int { return []int{5, 4, 3, 2, 1} },
		"plural":    Plural,
		"hasPrefix": strings.HasPrefix,
		"int64":     func(n int) int64 { return int64(n) },
		"float":     func(n int) float64 { return float64(n) },
	}
}

// Stars renders an average rating as five filled or empty stars, rounded to
// the nearest whole star.
func Stars(avg float64) string {
	full := int(math.Round(avg))
	full = max(0, min(full, 5))
	return strings.Repeat("★", full) + strings.Repeat("☆", 5-full)
}

func formatRating(avg float64) string {
	if avg == 0 {
		return "No ratings yet"
	}
	return strconv.FormatFloat(avg, 'f', 1, 64) + " / 5"
}

// Lines splits a multi-line text field into its non-blank lines.
func Lines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// EmbedURL turns a YouTube watch or short link into its embed form. Other
// links come back as "" so the page falls back to a plain link.
func EmbedURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(u.Host, "www.")
	var id string
	switch host {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
		} else if rest, ok := strings.CutPrefix(u.Path, "/embed/"); ok {
			id = rest
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	}
	if id == "" || strings.ContainsAny(id, "/?&") {
		return ""
	}
	return "https://www.youtube.com/embed/" + url.PathEscape(id)
}

// Plural returns singular when n is 1 and plural otherwise.
func Plural(n int64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
