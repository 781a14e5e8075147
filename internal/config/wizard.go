package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Hearth Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Upstream vendor
	for {
		fmt.Printf("Completion provider [openai/anthropic] (default %s): ", cfg.Upstream.Vendor)
		vendor, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if vendor == "" {
			break
		}
		if err := validator.ValidateVendor(vendor); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		cfg.Upstream.Vendor = vendor
		break
	}

	// API key
	for {
		fmt.Printf("%s API key: ", cfg.Upstream.Vendor)
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateAPIKey(key, cfg.Upstream.Vendor); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		cfg.Upstream.APIKey = key
		break
	}

	// Model
	fmt.Printf("Model (default %s): ", cfg.Upstream.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Upstream.Model = model
	}

	// Persona
	for {
		fmt.Printf("Persona [daddy/mummy/custom] (default %s): ", cfg.Prompt.DefaultPersona)
		persona, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if persona == "" {
			break
		}
		if err := validator.ValidatePersona(persona); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		cfg.Prompt.DefaultPersona = persona
		break
	}

	// Child name
	fmt.Print("Child's name (press Enter to skip): ")
	childName, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Prompt.ChildName = childName

	// Server port
	for {
		fmt.Printf("Server port (default %d): ", cfg.Server.Port)
		portText, err := w.readLine()
		if err != nil {
			return nil, err
		}
		if portText == "" {
			break
		}
		port, err := strconv.Atoi(portText)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Println("Error: port must be a number between 1 and 65535")
			continue
		}
		cfg.Server.Port = port
		break
	}

	fmt.Println()
	fmt.Println("Configuration complete.")
	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
