package script

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Type selects the flavour of ad script.
type Type string

const (
	TypeHook  Type = "hook"
	TypeOffer Type = "offer"
	TypeEdu   Type = "edu"
)

// ParseType maps user input onto a known script type; anything unknown is a hook.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeOffer:
		return TypeOffer
	case TypeEdu:
		return TypeEdu
	default:
		return TypeHook
	}
}

var (
	// ErrMissingAPIKey indicates that the writer was configured without credentials.
	ErrMissingAPIKey = errors.New("script: api key is required")
	// ErrProductNameRequired is returned for requests without a product name.
	ErrProductNameRequired = errors.New("script: product name is required")
	// ErrEmptyScript is returned when the model answers with no text.
	ErrEmptyScript = errors.New("script: empty response")
)

// Request describes the product a script is written for.
type Request struct {
	ProductName string
	ProductDesc string
	Type        Type
	Locale      string
}

// Writer produces a short voiceover script.
type Writer interface {
	Write(ctx context.Context, req Request) (string, error)
}

// UpstreamError carries a vendor's error message back to the caller.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("script: %s status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("script: %s: %s", e.Provider, e.Message)
}

const (
	systemPrompt = "You are an expert ad copywriter who writes compelling, short voiceover scripts for social media ads."
	maxTokens    = 150
	temperature  = 0.8
)

var templates = map[Type]string{
	TypeHook:  "Write a short, punchy 2-3 sentence voiceover script for a social media ad hook about %q. %s. The script should grab attention immediately, create curiosity, and make viewers want to keep watching. Keep it under 50 words. Just provide the script, no quotes or labels.",
	TypeOffer: "Write a short 2-3 sentence voiceover script for a sales offer ad about %q. %s. Focus on urgency, value, and a clear call-to-action. Mention a limited time offer or discount. Keep it under 50 words. Just provide the script, no quotes or labels.",
	TypeEdu:   "Write a short 2-3 sentence educational voiceover script about %q. %s. Explain a key benefit or how it solves a problem. Be informative but engaging. Keep it under 50 words. Just provide the script, no quotes or labels.",
}

func validate(req Request) error {
	if strings.TrimSpace(req.ProductName) == "" {
		return ErrProductNameRequired
	}
	return nil
}

func buildPrompt(req Request) string {
	desc := ""
	if d := strings.TrimSpace(req.ProductDesc); d != "" {
		desc = "Product description: " + d
	}
	tmpl, ok := templates[req.Type]
	if !ok {
		tmpl = templates[TypeHook]
	}
	prompt := fmt.Sprintf(tmpl, strings.TrimSpace(req.ProductName), desc)
	if lang := languageName(req.Locale); lang != "" {
		prompt += " Write the script in " + lang + "."
	}
	return prompt
}

// languageName returns the English name of a non-English locale.
func languageName(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	if base.String() == "en" || base.String() == "und" {
		return ""
	}
	return display.English.Tags().Name(language.Make(base.String()))
}

func cleanScript(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"“”")
	return strings.TrimSpace(text)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
