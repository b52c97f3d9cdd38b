package routing

import "strings"

// token is one argument of a console line and its byte offset in the line.
type token struct {
	text  string
	start int
}

// tokenize splits line on whitespace. A double-quoted argument is one token
// with the quotes removed; \" inside it does not terminate it.
func tokenize(line string) []token {
	var out []token
	i := 0
	for i < len(line) {
		for i < len(line) && isSpace(line[i]) {
			i++
		}
		if i >= len(line) {
			break
		}
		start := i
		if line[i] == '"' {
			i++
			for i < len(line) && line[i] != '"' {
				if line[i] == '\\' && i+1 < len(line) {
					i++
				}
				i++
			}
			end := min(i, len(line))
			out = append(out, token{text: line[start+1 : end], start: start})
			if i < len(line) {
				i++
			}
			continue
		}
		for i < len(line) && !isSpace(line[i]) {
			i++
		}
		out = append(out, token{text: line[start:i], start: start})
	}
	return out
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

// unescape resolves \\ and \" in a message.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && (s[i+1] == '\\' || s[i+1] == '"') {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// remoteArgs is a parsed /rc command.
type remoteArgs struct {
	includeSelf bool
	channel     string
	message     string
}

// parseRemoteArgs parses "[+self] <channel> <message>". The message is the raw
// remainder of args starting at its first token.
func parseRemoteArgs(args string) (remoteArgs, bool) {
	toks := tokenize(args)
	var r remoteArgs
	i := 0
	if i < len(toks) && toks[i].text == "+self" {
		r.includeSelf = true
		i++
	}
	if i+1 >= len(toks) {
		return remoteArgs{}, false
	}
	r.channel = strings.ToLower(toks[i].text)
	r.message = args[toks[i+1].start:]
	return r, true
}

// splitCommand separates "/cmd rest" into the lowercase command and its
// untrimmed argument string.
func splitCommand(line string) (string, string) {
	line = strings.TrimLeft(line, " \t")
	cmd, rest, _ := strings.Cut(line, " ")
	return strings.ToLower(cmd), strings.TrimLeft(rest, " \t")
}
