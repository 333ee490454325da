package modifier

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/xtding233/sector-run/internal/encounter"
)

var (
	ErrUnknownModifier = errors.New("unknown modifier")
	ErrWrongEncounter  = errors.New("modifier does not apply to this encounter")
	ErrDuplicateRule   = errors.New("modifier already registered")
)

// Context is what a rule sees when it is applied.
type Context struct {
	Now       time.Time
	Encounter encounter.Encounter
	Timers    Scheduler
}

func (c Context) Field() *encounter.Field { return c.Encounter.Field() }

func (c Context) Wave() (*encounter.Wave, bool) {
	w, ok := c.Encounter.(*encounter.Wave)
	return w, ok
}

func (c Context) Boss() (*encounter.Boss, bool) {
	b, ok := c.Encounter.(*encounter.Boss)
	return b, ok
}

// Rule is one modifier. Apply registers every side effect that must be undone on g.
type Rule struct {
	ID          string
	Encounter   encounter.Kind
	Title       string
	Description string
	Callout     string
	Apply       func(ctx Context, g *Guard) error
}

// Registry holds the rule catalog and at most one applied rule.
type Registry struct {
	rules  map[string]Rule
	log    zerolog.Logger
	active string
	target encounter.Encounter
	guard  *Guard
}

// NewRegistry returns a registry loaded with rules, or the built-in catalog when none are given.
func NewRegistry(logger zerolog.Logger, rules ...Rule) *Registry {
	if len(rules) == 0 {
		rules = Catalog()
	}
	r := &Registry{
		rules: make(map[string]Rule, len(rules)),
		log:   logger.With().Str("component", "modifier").Logger(),
	}
	for _, rule := range rules {
		if err := r.Register(rule); err != nil {
			r.log.Warn().Err(err).Str("modifier", rule.ID).Msg("skipping rule")
		}
	}
	return r
}

func (r *Registry) Register(rule Rule) error {
	if rule.ID == "" || rule.Apply == nil {
		return fmt.Errorf("modifier %q: id and apply are required", rule.ID)
	}
	if _, ok := r.rules[rule.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
	}
	r.rules[rule.ID] = rule
	return nil
}

// Activate releases whatever is applied and applies id to ctx.Encounter.
// Activating the id already applied to the same encounter does nothing and reports true.
func (r *Registry) Activate(id string, ctx Context) bool {
	if id != "" && id == r.active && ctx.Encounter == r.target && r.guard != nil {
		return true
	}
	r.Clear()
	if id == "" || ctx.Encounter == nil {
		return false
	}
	rule, ok := r.rules[id]
	if !ok {
		r.log.Warn().Err(ErrUnknownModifier).Str("modifier", id).Msg("modifier not applied")
		return false
	}
	if rule.Encounter != "" && rule.Encounter != ctx.Encounter.Kind() {
		r.log.Warn().Err(ErrWrongEncounter).Str("modifier", id).
			Str("encounter", string(ctx.Encounter.Kind())).Msg("modifier not applied")
		return false
	}

	g := &Guard{}
	if err := r.apply(rule, ctx, g); err != nil {
		r.log.Error().Err(err).Str("modifier", id).Msg("modifier apply failed")
		r.release(id, g)
		return false
	}
	r.active, r.target, r.guard = id, ctx.Encounter, g
	r.log.Debug().Str("modifier", id).Str("callout", rule.Callout).Msg("modifier applied")
	return true
}

func (r *Registry) apply(rule Rule, ctx Context, g *Guard) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return rule.Apply(ctx, g)
}

// Clear releases the applied rule, if any.
func (r *Registry) Clear() {
	if r.guard == nil {
		return
	}
	id, g := r.active, r.guard
	r.active, r.target, r.guard = "", nil, nil
	r.release(id, g)
}

func (r *Registry) release(id string, g *Guard) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Str("modifier", id).Interface("panic", p).Msg("modifier cleanup panicked")
		}
	}()
	g.Release()
}

// Active is the id of the applied rule, empty when none.
func (r *Registry) Active() string { return r.active }

func (r *Registry) Rule(id string) (Rule, bool) {
	rule, ok := r.rules[id]
	return rule, ok
}

// Rules lists the catalog sorted by id.
func (r *Registry) Rules() []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
