package messaging

import (
	"fmt"
	"strings"
	"time"
)

// markdownV2SpecialChars are the characters Telegram's MarkdownV2 dialect
// requires backslash-escaped outside of formatting entities.
const markdownV2SpecialChars = "_*[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 escapes every MarkdownV2 special character in s.
func EscapeMarkdownV2(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownV2SpecialChars, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatMessage builds the outbound rich-text block (spec.md §6.2):
//
//	_YYYY/MM/DD HH:MM_
//
//	{summary text}
//
//	{url}
//
//	#{category}              (single-level)
//	#{parent} #{child}       (two-level, split on '/')
//
// Every user-supplied substring is escaped; '#' is preserved literally on
// hashtags.
func FormatMessage(ts time.Time, summary, url, category string) string {
	timestamp := ts.Format("2006/01/02 15:04")
	hashtags := formatHashtags(category)

	return fmt.Sprintf(
		"_%s_\n\n%s\n\n%s\n\n%s",
		EscapeMarkdownV2(timestamp),
		EscapeMarkdownV2(summary),
		EscapeMarkdownV2(url),
		hashtags,
	)
}

// formatHashtags renders a category path as one or two hashtags, escaping
// each segment's text while leaving the '#' markers literal.
func formatHashtags(category string) string {
	segments := strings.SplitN(category, "/", 2)
	tags := make([]string, len(segments))
	for i, seg := range segments {
		tags[i] = "#" + EscapeMarkdownV2(seg)
	}
	return strings.Join(tags, " ")
}
