package moderation

import "strings"

// chatworkEmojis is the fixed catalog of Chatwork emoticon tokens counted
// for the spam check.
var chatworkEmojis = []string{
	":)", ":(", ":D", "8-)", ":o", ";)", "(sweat)", ":|", ":*", ":p",
	"(blush)", ":^)", "|-)", "(inlove)", ":]", "(talk)", "(yawn)",
	"(puke)", "(emo)", "8-|", ":#", ")(", "(nod)", "(shake)", "(^^;)",
	"(whew)", "(clap)", "(bow)", "(roger)", "(flex)", "(dance)", ":/",
	"(gogo)", "(think)", "(please)", "(quick)", "(anger)", "(devil)",
	"(lightbulb)", "(*)", "(h)", "(F)", "(cracker)", "(eat)", "(^)",
	"(coffee)", "(beer)", "(handshake)", "(y)",
}

// toallMarker broadcasts to every room member and is treated as spam on its
// own.
const toallMarker = "[toall]"

// CountEmojis returns the number of catalog emoticons in body. A broadcast
// marker counts as the full downgrade threshold by itself.
func CountEmojis(body string) int {
	if strings.Contains(body, toallMarker) {
		return EmojiLimit
	}
	count := 0
	for _, emoji := range chatworkEmojis {
		count += strings.Count(body, emoji)
	}
	return count
}
