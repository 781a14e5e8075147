// Package prompt builds the ordered message list sent upstream: a system
// message assembled from the persona prompt files and the sampled quotes,
// followed by rolling memory, followed by the caller's recent messages.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Persona selects the system-prompt identity of the relay.
type Persona string

// Built-in personas.
const (
	PersonaDaddy  Persona = "daddy"
	PersonaMummy  Persona = "mummy"
	PersonaCustom Persona = "custom"
)

// DefaultPersona is used when the request does not name one.
const DefaultPersona = PersonaDaddy

// Fallback prompt texts used when the corresponding file is missing.
const (
	fallbackBase = `You are a loving parent figure in a magical advent calendar experience.
Your role is to provide warm, encouraging, and age-appropriate responses to your child.
Keep responses positive, engaging, and focused on building emotional connection.`

	fallbackDaddy = `You are Daddy, speaking with warmth and playfulness to your child.
Use terms of endearment like "buddy," "champ," "my little explorer."
Focus on encouragement, fun, and gentle strength.`

	fallbackMummy = `You are Mummy, speaking warmly and nurturingly to your child.
Use terms of endearment like "darling," "sweetheart," "my love."
Focus on comfort, care, and gentle guidance.`

	fallbackCustom = `You are a loving parent figure speaking to your child.
Adapt your communication style to be warm, supportive, and engaging.`
)

// Builder assembles system prompts from a directory of prompt files
// (base.md plus one variant file per persona). Files are read once and
// cached; missing files fall back to built-in texts.
//
// Builder is safe for concurrent use.
type Builder struct {
	dir   string
	mu    sync.Mutex
	cache map[string]string
}

// NewBuilder returns a Builder reading prompt files from dir. An empty dir
// means fallbacks only.
func NewBuilder(dir string) *Builder {
	return &Builder{
		dir:   dir,
		cache: make(map[string]string),
	}
}

// SystemPrompt builds the persona system prompt. customPrompt replaces the
// persona variant when persona is PersonaCustom and the text is non-empty;
// childName personalizes the prompt when set.
func (b *Builder) SystemPrompt(persona Persona, childName, customPrompt string) string {
	base := b.load("base.md", fallbackBase)

	var variant string
	if persona == PersonaCustom && customPrompt != "" {
		variant = customPrompt
	} else {
		variant = b.load(fmt.Sprintf("%s_variant.md", personaOrDefault(persona)), personaFallback(persona))
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(variant)
	if childName != "" {
		fmt.Fprintf(&sb, "\n\nChild's name: %s", childName)
	}
	sb.WriteString("\n\nRemember to be warm, loving, and age-appropriate in your responses.")
	return sb.String()
}

func personaOrDefault(p Persona) Persona {
	switch p {
	case PersonaDaddy, PersonaMummy, PersonaCustom:
		return p
	default:
		return DefaultPersona
	}
}

func personaFallback(p Persona) string {
	switch p {
	case PersonaMummy:
		return fallbackMummy
	case PersonaCustom:
		return fallbackCustom
	default:
		return fallbackDaddy
	}
}

func (b *Builder) load(filename, fallback string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cached, ok := b.cache[filename]; ok {
		return cached
	}

	if b.dir != "" {
		data, err := os.ReadFile(filepath.Join(b.dir, filename))
		if err == nil {
			content := strings.TrimSpace(string(data))
			b.cache[filename] = content
			return content
		}
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("file", filename).Msg("Failed to read prompt file, using fallback")
		} else {
			log.Warn().Str("file", filename).Msg("Prompt file not found, using fallback")
		}
	}

	b.cache[filename] = fallback
	return fallback
}
