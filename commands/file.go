package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// fileCommand is one entry of a COMMANDS_FILE document:
//
//	commands:
//	  - name: "!discord"
//	    response: "https://discord.gg/example"
//	    cooldown_seconds: 30
type fileCommand struct {
	Name            string `yaml:"name" validate:"required,startswith=!"`
	Response        string `yaml:"response" validate:"required"`
	Usage           string `yaml:"usage"`
	NoResult        string `yaml:"no_result"`
	TagUser         bool   `yaml:"tag_user"`
	RequiresArgs    bool   `yaml:"requires_args"`
	CooldownSeconds uint   `yaml:"cooldown_seconds"`
	Action          string `yaml:"action" validate:"omitempty,oneof=spotify.queue"`
}

type fileDoc struct {
	Commands []fileCommand `yaml:"commands" validate:"dive"`
}

// LoadFile reads extra commands from a YAML file. The table is read once at
// startup.
func LoadFile(path string) ([]Command, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read commands file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a commands document.
func Parse(b []byte) ([]Command, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse commands file: %w", err)
	}
	if err := validator.New().Struct(doc); err != nil {
		return nil, fmt.Errorf("invalid commands file: %w", err)
	}
	out := make([]Command, 0, len(doc.Commands))
	for _, fc := range doc.Commands {
		out = append(out, Command{
			Name:         fc.Name,
			Response:     fc.Response,
			Usage:        fc.Usage,
			NoResult:     fc.NoResult,
			TagUser:      fc.TagUser,
			RequiresArgs: fc.RequiresArgs,
			Cooldown:     time.Duration(fc.CooldownSeconds) * time.Second,
			Action:       fc.Action,
		})
	}
	return out, nil
}
