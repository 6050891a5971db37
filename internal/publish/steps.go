package publish

import (
	"github.com/xkilldash9x/dealwire/internal/browser"
)

// Policy decides what a step failure does to the flow.
type Policy int

const (
	// Required failures abort the flow.
	Required Policy = iota
	// Optional failures are logged and the flow moves on.
	Optional
)

func (p Policy) String() string {
	if p == Optional {
		return "optional"
	}
	return "required"
}

// Action is the interaction performed on a step's target.
type Action int

const (
	Fill Action = iota
	Type
	Click
)

func (a Action) String() string {
	switch a {
	case Fill:
		return "fill"
	case Type:
		return "type"
	case Click:
		return "click"
	default:
		return "unknown"
	}
}

// TargetKind selects which Locator method resolves a target.
type TargetKind int

const (
	FieldTarget TargetKind = iota
	ControlTarget
	TextEntryTarget
)

// Target describes the element a step acts on.
type Target struct {
	Kind    TargetKind
	Pattern browser.Pattern
}

// Field targets an input by its label or placeholder.
func Field(p browser.Pattern) Target { return Target{Kind: FieldTarget, Pattern: p} }

// Control targets a button or link by its text.
func Control(p browser.Pattern) Target { return Target{Kind: ControlTarget, Pattern: p} }

// TextEntry targets the first free-text entry on the page.
func TextEntry() Target { return Target{Kind: TextEntryTarget} }

// Step is one wizard state.
type Step struct {
	Name   string
	Policy Policy
	Action Action
	Target Target
	// Value returns the text to enter. Unused by Click.
	Value func(Request) string
	// When reports whether the step applies to the request. Nil means always.
	When func(Request) bool
	// Settle waits for the page after a click.
	Settle bool
}

// Bilingual label patterns of the submission wizard.
var (
	PatternLink     = browser.MustPattern(`enlace|link|url`)
	PatternNext     = browser.MustPattern(`siguiente|continuar|next|continue`)
	PatternPrice    = browser.MustPattern(`precio de (la )?oferta|precio (actual|rebajado)|offer price|deal price|^precio$|^price$`)
	PatternRRP      = browser.MustPattern(`pvp|precio habitual|precio original|precio anterior|rrp|regular price|original price|list price`)
	PatternTitle    = browser.MustPattern(`t[ií]tulo|title`)
	PatternPublish  = browser.MustPattern(`publicar|publish`)
	PatternEmail    = browser.MustPattern(`e-?mail|correo|usuario|username`)
	PatternPassword = browser.MustPattern(`contrase[ñn]a|password|clave`)
	PatternSignIn   = browser.MustPattern(`iniciar sesi[oó]n|entrar|acceder|log ?in|sign ?in`)
)

func hasPrice(r Request) bool { return r.Price != nil }

func hasRRP(r Request) bool { return r.RRP != nil }

// DefaultSteps returns the submission wizard sequence. sourceLabel closes
// the generated description.
func DefaultSteps(sourceLabel string) []Step {
	return []Step{
		{Name: "link", Policy: Required, Action: Fill, Target: Field(PatternLink),
			Value: func(r Request) string { return r.URL }},
		{Name: "advance_link", Policy: Required, Action: Click, Target: Control(PatternNext), Settle: true},
		{Name: "price", Policy: Optional, Action: Fill, Target: Field(PatternPrice), When: hasPrice,
			Value: func(r Request) string { return FormatPrice(*r.Price) }},
		{Name: "rrp", Policy: Optional, Action: Fill, Target: Field(PatternRRP), When: hasRRP,
			Value: func(r Request) string { return FormatPrice(*r.RRP) }},
		{Name: "advance_price", Policy: Optional, Action: Click, Target: Control(PatternNext), Settle: true},
		{Name: "title", Policy: Required, Action: Fill, Target: Field(PatternTitle),
			Value: func(r Request) string { return r.Title }},
		{Name: "advance_title", Policy: Required, Action: Click, Target: Control(PatternNext), Settle: true},
		{Name: "description", Policy: Required, Action: Type, Target: TextEntry(),
			Value: func(r Request) string { return Describe(r, sourceLabel) }},
		{Name: "advance_description", Policy: Required, Action: Click, Target: Control(PatternNext), Settle: true},
		// Image upload is not supported; only try to move past the step.
		{Name: "image", Policy: Optional, Action: Click, Target: Control(PatternNext), Settle: true},
		{Name: "publish", Policy: Optional, Action: Click, Target: Control(PatternPublish)},
	}
}
