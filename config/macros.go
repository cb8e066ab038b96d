package config

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	maxMacroName  = 63
	maxMacroValue = 1023
)

var (
	macroNameRegex    = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	macroPatternRegex = regexp.MustCompile(`\$\{([a-zA-Z0-9_-]+)\}`)
)

type MacroEntry struct {
	Name  string
	Value any
}

// MacroList keeps macros in the order they are written in the file.
type MacroList []MacroEntry

func (ml *MacroList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("macros must be a mapping, got line %d", node.Line)
	}

	list := make(MacroList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		entry := MacroEntry{}
		if err := node.Content[i].Decode(&entry.Name); err != nil {
			return fmt.Errorf("macro name on line %d: %w", node.Content[i].Line, err)
		}
		if err := node.Content[i+1].Decode(&entry.Value); err != nil {
			return fmt.Errorf("macro '%s': %w", entry.Name, err)
		}
		list = append(list, entry)
	}

	*ml = list
	return nil
}

func (ml MacroList) Get(name string) (any, bool) {
	for i := range ml {
		if ml[i].Name == name {
			return ml[i].Value, true
		}
	}
	return nil, false
}

// Expand substitutes ${name} references, last defined macro first so a
// later macro may use an earlier one. It fails on any reference left over.
func (ml MacroList) Expand(s string) (string, error) {
	for i := len(ml) - 1; i >= 0; i-- {
		s = strings.ReplaceAll(s, "${"+ml[i].Name+"}", fmt.Sprint(ml[i].Value))
	}

	if m := macroPatternRegex.FindStringSubmatch(s); m != nil {
		return s, fmt.Errorf("unknown macro '${%s}'", m[1])
	}
	return s, nil
}

func (ml MacroList) validate() error {
	for _, entry := range ml {
		if err := entry.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e MacroEntry) validate() error {
	switch {
	case len(e.Name) > maxMacroName:
		return fmt.Errorf("macro name '%s' is longer than %d characters", e.Name, maxMacroName)
	case !macroNameRegex.MatchString(e.Name):
		return fmt.Errorf("macro name '%s' contains invalid characters, allowed: %s", e.Name, macroNameRegex)
	}

	switch v := e.Value.(type) {
	case string:
		if len(v) > maxMacroValue {
			return fmt.Errorf("macro '%s' value is longer than %d characters", e.Name, maxMacroValue)
		}
		if strings.Contains(v, "${"+e.Name+"}") {
			return fmt.Errorf("macro '%s' contains self-reference", e.Name)
		}
	case int, int64, uint64, float64, bool:
	default:
		return fmt.Errorf("macro '%s' is a %T, must be a scalar type (string, number or bool)", e.Name, e.Value)
	}
	return nil
}
