package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/billziss-gh/golib/shlex"
	"github.com/tidwall/gjson"
)

// EmitCommand is a trigger described on one line: the event types followed
// by the arguments.
type EmitCommand struct {
	Types string
	Args  []any
}

// ParseEmitCommand splits a line with POSIX shell quoting. The first word is
// the event types (quote it to name several), every other word becomes an
// argument: JSON literals (numbers, booleans, null, objects, arrays) are
// decoded, anything else stays a string.
func ParseEmitCommand(line string) (EmitCommand, error) {
	words := shlex.Posix.Split(line)
	if len(words) == 0 {
		return EmitCommand{}, fmt.Errorf("empty emit command")
	}

	types := strings.Join(strings.Fields(words[0]), " ")
	if types == "" {
		return EmitCommand{}, fmt.Errorf("emit command has no event type")
	}

	args := make([]any, 0, len(words)-1)
	for _, word := range words[1:] {
		args = append(args, ParseArg(word))
	}

	return EmitCommand{Types: types, Args: args}, nil
}

// ParseArg decodes a JSON literal, falling back to the word itself.
func ParseArg(word string) any {
	if !gjson.Valid(word) {
		return word
	}
	return JSONValue(gjson.Parse(word))
}

// JSONValue converts a parsed JSON value. Integers that fit in 64 bits stay
// int64 (uint64 above the int64 range) so ids keep every digit; other
// numbers become float64.
func JSONValue(r gjson.Result) any {
	switch {
	case r.Type == gjson.Number:
		return jsonNumber(r)
	case r.IsArray():
		items := r.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			out = append(out, JSONValue(item))
		}
		return out
	case r.IsObject():
		out := make(map[string]any)
		r.ForEach(func(key, value gjson.Result) bool {
			out[key.String()] = JSONValue(value)
			return true
		})
		return out
	}
	return r.Value()
}

func jsonNumber(r gjson.Result) any {
	raw := strings.TrimSpace(r.Raw)
	if !strings.ContainsAny(raw, ".eE") {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if u, err := strconv.ParseUint(raw, 10, 64); err == nil {
			return u
		}
	}
	return r.Float()
}
