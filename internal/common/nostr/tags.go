package nostr

import gonostr "github.com/nbd-wtf/go-nostr"

// Tag is a single event tag, e.g. ["param", "max_results", "10"].
type Tag []string

// Key returns the tag name, or "" for an empty tag.
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the first value after the name.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

// At returns the element at i or "".
func (t Tag) At(i int) string {
	if i < 0 || i >= len(t) {
		return ""
	}
	return t[i]
}

type Tags []Tag

// Find returns the first tag named key.
func (tags Tags) Find(key string) (Tag, bool) {
	for _, t := range tags {
		if t.Key() == key {
			return t, true
		}
	}
	return nil, false
}

func (tags Tags) FindAll(key string) []Tag {
	var out []Tag
	for _, t := range tags {
		if t.Key() == key {
			out = append(out, t)
		}
	}
	return out
}

// Identifier returns the "d" tag value of an addressable event.
func (tags Tags) Identifier() string {
	t, ok := tags.Find("d")
	if !ok {
		return ""
	}
	return t.Value()
}

// ContainsValue reports whether some tag named key carries value at index 1.
func (tags Tags) ContainsValue(key, value string) bool {
	for _, t := range tags {
		if t.Key() == key && t.Value() == value {
			return true
		}
	}
	return false
}

// Lib converts to go-nostr tags, never nil.
func (tags Tags) Lib() gonostr.Tags {
	out := make(gonostr.Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, gonostr.Tag(t))
	}
	return out
}

func TagsFromLib(tags gonostr.Tags) Tags {
	out := make(Tags, 0, len(tags))
	for _, t := range tags {
		out = append(out, Tag(t))
	}
	return out
}
