package broker

import "strings"

// Codec maps "/"-separated topics to a transport's native names and back.
// Transports with hierarchical names (NATS subjects, AMQP routing keys) use
// "." as Sep; Kafka uses it for flat topic names.
type Codec struct {
	Sep    string
	Prefix string
}

// Dotted returns a Codec for dot-separated names under prefix.
func Dotted(prefix string) Codec {
	return Codec{Sep: ".", Prefix: prefix}
}

// Encode returns the native name for topic.
func (c Codec) Encode(topic string) string {
	name := strings.ReplaceAll(topic, "/", c.Sep)
	if c.Prefix == "" {
		return name
	}
	return c.Prefix + c.Sep + name
}

// Decode returns the topic for a native name. Names outside the prefix are
// returned with only the separator translated.
func (c Codec) Decode(name string) string {
	if c.Prefix != "" {
		name = strings.TrimPrefix(name, c.Prefix+c.Sep)
	}
	return strings.ReplaceAll(name, c.Sep, "/")
}

// Filter encodes a subscription filter, replacing the single-level
// wildcards "+", "*" and "{name}" with single and the multi-level wildcard
// "#" with multi.
func (c Codec) Filter(filter, single, multi string) string {
	levels := strings.Split(filter, "/")
	for i, lvl := range levels {
		switch {
		case lvl == "+" || lvl == "*" || isCapture(lvl):
			levels[i] = single
		case lvl == "#":
			levels[i] = multi
		}
	}
	return c.Encode(strings.Join(levels, "/"))
}

// HasWildcard reports whether filter contains a wildcard level.
func HasWildcard(filter string) bool {
	for _, lvl := range strings.Split(filter, "/") {
		if lvl == "+" || lvl == "*" || lvl == "#" || isCapture(lvl) {
			return true
		}
	}
	return false
}

func isCapture(lvl string) bool {
	return len(lvl) > 2 && strings.HasPrefix(lvl, "{") && strings.HasSuffix(lvl, "}")
}
