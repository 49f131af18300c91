package models

import (
	"encoding/json"
	"fmt"
)

// Action is the closed set of outcomes a chat request can resolve to. Each
// variant marshals with a "type" discriminator so the game mod can switch on
// it directly.
type Action interface {
	ActionType() string
}

// ChatAction is plain conversational text.
type ChatAction struct {
	Text string `json:"text"`
}

// CommandAction is a single vanilla server command.
type CommandAction struct {
	Command string `json:"command"`
}

// BuildAction describes a parameterized structure build.
type BuildAction struct {
	Structure string `json:"structure"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Depth     int    `json:"depth"`
	Material  string `json:"material"`
}

// WorldEditAction is a batch of world-editing commands.
type WorldEditAction struct {
	Description string   `json:"description"`
	Commands    []string `json:"commands"`
	StrictMode  *bool    `json:"strictMode,omitempty"`
}

// PixelArtAction asks the bridge to compile an image into placement commands.
type PixelArtAction struct {
	URL  string `json:"url"`
	Size *int   `json:"size,omitempty"`
}

// ErrorAction carries a human-readable rejection or failure message.
type ErrorAction struct {
	Text string `json:"text"`
}

func (ChatAction) ActionType() string      { return "chat" }
func (CommandAction) ActionType() string   { return "command" }
func (BuildAction) ActionType() string     { return "build" }
func (WorldEditAction) ActionType() string { return "worldedit" }
func (PixelArtAction) ActionType() string  { return "pixelart" }
func (ErrorAction) ActionType() string     { return "error" }

func (a ChatAction) MarshalJSON() ([]byte, error) {
	type alias ChatAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

func (a CommandAction) MarshalJSON() ([]byte, error) {
	type alias CommandAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

func (a BuildAction) MarshalJSON() ([]byte, error) {
	type alias BuildAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

func (a WorldEditAction) MarshalJSON() ([]byte, error) {
	type alias WorldEditAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

func (a PixelArtAction) MarshalJSON() ([]byte, error) {
	type alias PixelArtAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

func (a ErrorAction) MarshalJSON() ([]byte, error) {
	type alias ErrorAction
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{a.ActionType(), alias(a)})
}

// structure names the agent may ask for; anything else fails decoding.
var buildStructures = map[string]bool{
	"cube":     true,
	"house":    true,
	"tower":    true,
	"platform": true,
}

const (
	maxBuildDimension    = 64
	maxWorldEditCommands = 500
	minPixelArtSize      = 8
	maxPixelArtSize      = 128
)

// DecodeAction parses raw JSON into one Action variant, enforcing the same
// bounds the remote agent is prompted with. A schema violation returns an
// error; callers decide how to degrade.
func DecodeAction(data []byte) (Action, error) {
	var probe struct {
		Type        string   `json:"type"`
		Text        *string  `json:"text"`
		Command     *string  `json:"command"`
		Structure   string   `json:"structure"`
		Width       int      `json:"width"`
		Height      int      `json:"height"`
		Depth       int      `json:"depth"`
		Material    string   `json:"material"`
		Description *string  `json:"description"`
		Commands    []string `json:"commands"`
		StrictMode  *bool    `json:"strictMode"`
		URL         *string  `json:"url"`
		Size        *int     `json:"size"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, err
	}

	switch probe.Type {
	case "chat":
		if probe.Text == nil {
			return nil, fmt.Errorf("chat action missing text")
		}
		return ChatAction{Text: *probe.Text}, nil
	case "command":
		if probe.Command == nil {
			return nil, fmt.Errorf("command action missing command")
		}
		return CommandAction{Command: *probe.Command}, nil
	case "build":
		if !buildStructures[probe.Structure] {
			return nil, fmt.Errorf("unknown structure %q", probe.Structure)
		}
		for _, dim := range []int{probe.Width, probe.Height, probe.Depth} {
			if dim < 1 || dim > maxBuildDimension {
				return nil, fmt.Errorf("build dimension %d out of range", dim)
			}
		}
		if probe.Material == "" {
			return nil, fmt.Errorf("build action missing material")
		}
		return BuildAction{
			Structure: probe.Structure,
			Width:     probe.Width,
			Height:    probe.Height,
			Depth:     probe.Depth,
			Material:  probe.Material,
		}, nil
	case "worldedit":
		if probe.Description == nil {
			return nil, fmt.Errorf("worldedit action missing description")
		}
		if len(probe.Commands) < 1 || len(probe.Commands) > maxWorldEditCommands {
			return nil, fmt.Errorf("worldedit command count %d out of range", len(probe.Commands))
		}
		return WorldEditAction{
			Description: *probe.Description,
			Commands:    probe.Commands,
			StrictMode:  probe.StrictMode,
		}, nil
	case "pixelart":
		if probe.URL == nil || *probe.URL == "" {
			return nil, fmt.Errorf("pixelart action missing url")
		}
		if probe.Size != nil && (*probe.Size < minPixelArtSize || *probe.Size > maxPixelArtSize) {
			return nil, fmt.Errorf("pixelart size %d out of range", *probe.Size)
		}
		return PixelArtAction{URL: *probe.URL, Size: probe.Size}, nil
	case "error":
		if probe.Text == nil {
			return nil, fmt.Errorf("error action missing text")
		}
		return ErrorAction{Text: *probe.Text}, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", probe.Type)
	}
}
