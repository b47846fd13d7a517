// Package chat implements the Twitch IRC-over-WebSocket channel:
// capability negotiation, the joined-room map, inbound command routing,
// and a rate-limited bounded outbound queue.
package chat

import (
	"strconv"
	"strings"
	"time"
)

// ircMessage is one parsed IRCv3 line.
type ircMessage struct {
	Raw     string
	Tags    map[string]string
	Source  string
	Nick    string
	Command string
	Params  []string
	Channel string
	Text    string
}

// parseIRC parses a single IRCv3 line: optional @tags, optional
// :source, command, middle params and an optional trailing param.
func parseIRC(line string) ircMessage {
	msg := ircMessage{Raw: line}
	rest := strings.TrimSuffix(line, "\r")

	if strings.HasPrefix(rest, "@") {
		rawTags, remainder, _ := strings.Cut(rest[1:], " ")
		msg.Tags = parseTags(rawTags)
		rest = remainder
	}

	if strings.HasPrefix(rest, ":") {
		source, remainder, _ := strings.Cut(rest[1:], " ")
		msg.Source = source
		if nick, _, ok := strings.Cut(source, "!"); ok {
			msg.Nick = nick
		}
		rest = remainder
	}

	var trailing string
	var hasTrailing bool
	if body, t, ok := strings.Cut(rest, " :"); ok {
		rest = body
		trailing = t
		hasTrailing = true
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return msg
	}
	msg.Command = fields[0]
	msg.Params = fields[1:]
	if hasTrailing {
		msg.Params = append(msg.Params, trailing)
		msg.Text = trailing
	}

	for _, p := range fields[1:] {
		if strings.HasPrefix(p, "#") {
			msg.Channel = strings.TrimPrefix(p, "#")
			break
		}
	}
	return msg
}

// parseTags splits an IRCv3 tag string and unescapes tag values.
func parseTags(raw string) map[string]string {
	tags := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		key, value, _ := strings.Cut(pair, "=")
		tags[key] = unescapeTag(value)
	}
	return tags
}

// unescapeTag reverses the IRCv3 tag value escaping.
func unescapeTag(value string) string {
	if !strings.Contains(value, "\\") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		if value[i] != '\\' || i == len(value)-1 {
			b.WriteByte(value[i])
			continue
		}
		i++
		switch value[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(value[i])
		}
	}
	return b.String()
}

// parseBadges decodes the badges tag ("moderator/1,subscriber/12") into
// a name → version map.
func parseBadges(raw string) map[string]int {
	if raw == "" {
		return nil
	}
	badges := make(map[string]int)
	for _, badge := range strings.Split(raw, ",") {
		name, version, _ := strings.Cut(badge, "/")
		v, _ := strconv.Atoi(version)
		badges[name] = v
	}
	return badges
}

// tagTimestamp decodes the tmi-sent-ts millisecond timestamp tag.
func tagTimestamp(tags map[string]string) time.Time {
	ms, err := strconv.ParseInt(tags["tmi-sent-ts"], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
