package http

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Script describes how the scripted backend plays out every run.
//
// A run streams its segments in order. A segment with an interrupt pauses
// the run after its events; the next stream continues with the following
// segment once a resume has supplied every requested key. The last segment's
// result is sent just before the terminal marker.
type Script struct {
	Name string `yaml:"name"`
	// Delay is the pause between frames.
	Delay    time.Duration `yaml:"delay"`
	Segments []Segment     `yaml:"segments"`
}

// Segment is one stretch of a run between pauses.
type Segment struct {
	Events    []map[string]any  `yaml:"events"`
	Interrupt map[string]string `yaml:"interrupt,omitempty"`
	Result    any               `yaml:"result,omitempty"`
	// Fail ends the run with an error event carrying this message.
	Fail string `yaml:"fail,omitempty"`
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("failed to read script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}

// Validate checks the script can be played.
func (s Script) Validate() error {
	if len(s.Segments) == 0 {
		return errors.New("script has no segments")
	}
	if s.Delay < 0 {
		return errors.New("script delay must not be negative")
	}
	for i, seg := range s.Segments {
		if seg.Fail != "" && seg.Interrupt != nil {
			return fmt.Errorf("segment %d: fail and interrupt are exclusive", i)
		}
		if seg.Interrupt != nil && len(seg.Interrupt) == 0 {
			return fmt.Errorf("segment %d: interrupt requests no fields", i)
		}
		for key, prompt := range seg.Interrupt {
			if key == "" || prompt == "" {
				return fmt.Errorf("segment %d: interrupt fields need a key and a prompt", i)
			}
		}
	}
	return nil
}

// DefaultScript is the built-in demo: provisioning a VM with two pauses.
func DefaultScript() Script {
	return Script{
		Name:  "create-vm",
		Delay: 150 * time.Millisecond,
		Segments: []Segment{
			{
				Events: []map[string]any{
					{"step": 1, "message": "Planning tasks for the request"},
					{"step": 2, "message": "Resolving resource group"},
				},
				Interrupt: map[string]string{"region": "Select a region"},
			},
			{
				Events: []map[string]any{
					{"step": 3, "message": "Checking quota in the selected region"},
				},
				Interrupt: map[string]string{"size": "Pick a VM size", "admin_user": "Administrator user name"},
			},
			{
				Events: []map[string]any{
					{"step": 4, "message": "Creating virtual network"},
					{"step": 5, "message": "Creating virtual machine"},
				},
				Result: map[string]any{"vmId": "vm-42", "status": "running"},
			},
		},
	}
}
