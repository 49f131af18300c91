package validator

import "strings"

// Command and material tables are static reference data shared with the
// generator that produces the client mod's whitelist; keep them in sync with
// the shared manifest when commands are added.

var whitelistedCommands = map[string]bool{
	// vanilla server commands
	"time":       true,
	"weather":    true,
	"give":       true,
	"tp":         true,
	"gamemode":   true,
	"difficulty": true,
	"effect":     true,
	"setblock":   true,
	"fill":       true,

	// worldedit commands keep their marker as part of the token
	"//pos1":     true,
	"//pos2":     true,
	"//set":      true,
	"//replace":  true,
	"//walls":    true,
	"//outline":  true,
	"//hollow":   true,
	"//sphere":   true,
	"//hsphere":  true,
	"//cyl":      true,
	"//hcyl":     true,
	"//pyramid":  true,
	"//hpyramid": true,
	"//stack":    true,
	"//move":     true,
	"//copy":     true,
	"//paste":    true,
	"//undo":     true,
	"//redo":     true,
	"//expand":   true,
	"//contract": true,
}

var validMaterials = map[string]bool{
	"stone":            true,
	"cobblestone":      true,
	"oak_planks":       true,
	"spruce_planks":    true,
	"birch_planks":     true,
	"jungle_planks":    true,
	"acacia_planks":    true,
	"dark_oak_planks":  true,
	"bricks":           true,
	"stone_bricks":     true,
	"sandstone":        true,
	"red_sandstone":    true,
	"quartz_block":     true,
	"prismarine":       true,
	"obsidian":         true,
	"glass":            true,
	"dirt":             true,
	"oak_log":          true,
	"spruce_log":       true,
	"birch_log":        true,
	"iron_block":       true,
	"gold_block":       true,
	"diamond_block":    true,
	"emerald_block":    true,
	"netherrack":       true,
	"deepslate":        true,
	"deepslate_bricks": true,
	"copper_block":     true,
	"moss_block":       true,
	"packed_ice":       true,
	"snow_block":       true,
	"white_wool":       true,
	"white_concrete":   true,
}

// BaseCommand extracts the token checked against the whitelist: the first
// whitespace-delimited word, with a leading "/" stripped. Worldedit commands
// start with "//" and are matched as a single token including the marker.
func BaseCommand(command string) string {
	trimmed := strings.TrimSpace(command)
	if strings.HasPrefix(trimmed, "//") {
		fields := strings.Fields(trimmed[2:])
		if len(fields) == 0 {
			return "//"
		}
		return "//" + fields[0]
	}
	trimmed = strings.TrimPrefix(trimmed, "/")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// IsCommandWhitelisted reports whether the command's base token is allowed.
func IsCommandWhitelisted(command string) bool {
	return whitelistedCommands[BaseCommand(command)]
}

// IsMaterialValid reports whether the material name is allowed, ignoring an
// optional "minecraft:" namespace prefix.
func IsMaterialValid(material string) bool {
	return validMaterials[strings.TrimPrefix(material, "minecraft:")]
}
