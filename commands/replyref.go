package commands

import (
	"regexp"
	"strconv"
)

// Reference is one parsed reply reference. Chatwork reply markup embeds the
// referenced message as to=<roomID>-<messageID>.
type Reference struct {
	RoomID    int64
	MessageID string
}

var refPattern = regexp.MustCompile(`to=(\d+)-(\d+)`)

// ParseReferences extracts every reply reference from a message body, in
// order of appearance. An empty result means no reference matched.
func ParseReferences(body string) []Reference {
	var refs []Reference
	for _, match := range refPattern.FindAllStringSubmatch(body, -1) {
		roomID, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		refs = append(refs, Reference{RoomID: roomID, MessageID: match[2]})
	}
	return refs
}
