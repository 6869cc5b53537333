package keyword

import (
	"regexp"
	"strings"
)

var (
	fencedCode  = regexp.MustCompile("(?s)```.*?```")
	inlineCode  = regexp.MustCompile("`[^`\n]*`")
	doubleQuote = regexp.MustCompile(`"[^"\n]*"|“[^”\n]*”`)
)

// Strips fenced code blocks, inline code spans, and single- or double-quoted passages, so members are not punished for quoting others.
func Sanitize(content string) string {
	out := fencedCode.ReplaceAllString(content, " ")
	out = inlineCode.ReplaceAllString(out, " ")
	out = doubleQuote.ReplaceAllString(out, " ")
	out = stripSingleQuoted(out)
	return strings.TrimSpace(out)
}

// Replaces 'quoted' passages with a space. A quote only opens or closes on a word boundary, so apostrophes inside words ("don't") are left alone.
func stripSingleQuoted(s string) string {
	var sb strings.Builder
	done, pos := 0, 0
	for {
		i := strings.IndexByte(s[pos:], '\'')
		if i < 0 {
			break
		}
		open := pos + i
		pos = open + 1
		if !wholeWord(s, open, open) {
			continue
		}
		end := -1
		for j := open + 1; j < len(s) && s[j] != '\n'; j++ {
			if s[j] == '\'' && wholeWord(s, j+1, j+1) {
				end = j
				break
			}
		}
		if end < 0 {
			continue
		}
		sb.WriteString(s[done:open])
		sb.WriteByte(' ')
		done = end + 1
		pos = done
	}
	if done == 0 {
		return s
	}
	sb.WriteString(s[done:])
	return sb.String()
}
