package engine

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/voltquery/voltquery/internal/tool"
)

// defaultAliases maps tool names the model is known to invent to the
// registered identifiers. Keys are normalized (lowercase, punctuation
// stripped) before lookup.
var defaultAliases = map[string]string{
	"charging station tool": tool.NameTransportation,
	"charging stations":     tool.NameTransportation,
	"ev charging tool":      tool.NameTransportation,
	"ev tool":               tool.NameTransportation,
	"stations tool":         tool.NameTransportation,
	"transportation":        tool.NameTransportation,

	"electricity rates tool": tool.NameUtility,
	"rates tool":             tool.NameUtility,
	"rate tool":              tool.NameUtility,
	"utility":                tool.NameUtility,
	"utility rates tool":     tool.NameUtility,
	"urdb tool":              tool.NameUtility,

	"pv tool":           tool.NameSolar,
	"pvwatts tool":      tool.NameSolar,
	"solar":             tool.NameSolar,
	"solar tool":        tool.NameSolar,
	"solar energy tool": tool.NameSolar,

	"building tool":       tool.NameBuildings,
	"building codes tool": tool.NameBuildings,
	"buildings":           tool.NameBuildings,
	"energy codes tool":   tool.NameBuildings,

	"financial tool":  tool.NameOptimization,
	"optimization":    tool.NameOptimization,
	"optimizer":       tool.NameOptimization,
	"optimizer tool":  tool.NameOptimization,
	"reopt tool":      tool.NameOptimization,
	"roi tool":        tool.NameOptimization,
	"npv tool":        tool.NameOptimization,
	"investment tool": tool.NameOptimization,
}

// LoadAliases reads additional alias mappings from a YAML file of the
// form `alias: tool_name` and merges them over the defaults. A missing
// path returns the defaults unchanged.
func LoadAliases(path string) (map[string]string, error) {
	aliases := make(map[string]string, len(defaultAliases))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	if path == "" {
		return aliases, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return aliases, nil
		}
		return nil, eris.Wrapf(err, "engine: read alias file %s", path)
	}

	var extra map[string]string
	if err := yaml.Unmarshal(raw, &extra); err != nil {
		return nil, eris.Wrapf(err, "engine: parse alias file %s", path)
	}
	for k, v := range extra {
		aliases[normalizeToolName(k)] = v
	}
	return aliases, nil
}
