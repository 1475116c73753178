package bot

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is Telegram's limit for one text message.
const MaxMessageLength = 4096

var (
	reCodeBlock  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`\\n]+)`")
	reHeading    = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]+(.+?)[ \t]*#*[ \t]*$`)
	reBullet     = regexp.MustCompile(`(?m)^([ \t]*)[-*+][ \t]+`)
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	reItalic     = regexp.MustCompile(`\*([^*\n]+?)\*`)
	rePlacehold  = regexp.MustCompile("\x00(\\d+)\x00")
)

// MarkdownToHTML turns the markdown that language models like to produce into
// the small HTML subset Telegram accepts. Everything else is escaped.
func MarkdownToHTML(md string) string {
	var code []string
	stash := func(s string) string {
		code = append(code, s)
		return fmt.Sprintf("\x00%d\x00", len(code)-1)
	}

	text := strings.ReplaceAll(md, "\r\n", "\n")
	text = reCodeBlock.ReplaceAllStringFunc(text, func(m string) string {
		inner := reCodeBlock.FindStringSubmatch(m)[1]
		return stash("<pre>" + html.EscapeString(strings.TrimRight(inner, "\n")) + "</pre>")
	})
	text = reInlineCode.ReplaceAllStringFunc(text, func(m string) string {
		inner := reInlineCode.FindStringSubmatch(m)[1]
		return stash("<code>" + html.EscapeString(inner) + "</code>")
	})

	text = html.EscapeString(text)
	text = reHeading.ReplaceAllString(text, "<b>$1</b>")
	text = reBullet.ReplaceAllString(text, "$1• ")
	text = reBold.ReplaceAllStringFunc(text, func(m string) string {
		sub := reBold.FindStringSubmatch(m)
		inner := sub[1]
		if inner == "" {
			inner = sub[2]
		}
		return "<b>" + inner + "</b>"
	})
	text = reItalic.ReplaceAllString(text, "<i>$1</i>")

	return rePlacehold.ReplaceAllStringFunc(text, func(m string) string {
		var i int
		fmt.Sscanf(strings.Trim(m, "\x00"), "%d", &i)
		if i < 0 || i >= len(code) {
			return ""
		}
		return code[i]
	})
}

// SplitMessage cuts text into chunks of at most limit characters, preferring
// line boundaries.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageLength
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(line)
		if curLen+n > limit {
			flush()
		}
		for n > limit {
			runes := []rune(line)
			chunks = append(chunks, string(runes[:limit]))
			line = string(runes[limit:])
			n -= limit
		}
		cur.WriteString(line)
		curLen += n
	}
	flush()
	return chunks
}
