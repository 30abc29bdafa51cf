package channels

import "strings"

// Platform message length limits, in runes.
const (
	DiscordMessageLimit  = 2000
	TelegramMessageLimit = 4096
	SlackMessageLimit    = 4000
)

// SplitText splits text into chunks of at most limit runes, preferring to
// cut on a newline when one falls in the second half of the window.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return []string{text}
	}

	var out []string
	remaining := runes
	for len(remaining) > limit {
		window := remaining[:limit]
		cut := lastIndexRune(window, '\n')
		if cut < limit/2 {
			cut = limit
		}
		chunk := strings.TrimRight(string(remaining[:cut]), " \t\n")
		if chunk != "" {
			out = append(out, chunk)
		}
		remaining = []rune(strings.TrimLeft(string(remaining[cut:]), " \t\n"))
	}
	if len(remaining) > 0 {
		out = append(out, string(remaining))
	}
	return out
}

func lastIndexRune(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}
