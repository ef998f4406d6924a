/*
Package factory provides JSON to Go catalog conversion.

PURPOSE:
  Converts JSON catalog definitions (payscales, rates, date ranges, agents,
  overrides) into commission structs and writes them through a CatalogWriter.
  This enables rate configuration without code changes - operations staff
  can define payscales in JSON, and the factory loads them into the store.

WHY JSON?
  - Non-developers can modify rate tables
  - Easy integration with an admin UI
  - Version control for rate definitions
  - Database storage of catalog configs

JSON SCHEMA:
  {
    "channel": "normal",
    "plans": [
      {"name": "1 Gig", "payout": 150}
    ],
    "payscales": [
      {
        "id": "ps-standard",
        "name": "Standard",
        "role": "personal",
        "upfront_percentage": 70,
        "backend_percentage": 30,
        "rates": [{"plan": "1 Gig", "base": 120, "upgrade": 60}],
        "ranges": [
          {
            "start": "2024-01-01",
            "end": "2024-03-31",
            "rates": [{"plan": "1 Gig", "base": 140, "upgrade": 70}]
          }
        ]
      }
    ],
    "agents": [
      {
        "id": "agent-1",
        "name": "Dana Smith",
        "identifier": "ext-301",
        "personal_payscale": "ps-standard",
        "manager": "agent-9"
      }
    ],
    "overrides": [
      {"manager": "agent-9", "agent": "agent-1", "plan": "1 Gig", "base": 15}
    ]
  }

KEY FEATURES:
  - Rates reference plans by extract vocabulary name; the factory resolves
    them to plan IDs within the document
  - Open-ended ranges omit "end"
  - Omitted upgrade values default to zero

USAGE:
  f := factory.NewCatalogFactory()
  if err := f.Load(jsonStr, store); err != nil { ... }

SEE ALSO:
  - commission/catalog.go: The snapshot these definitions are loaded into
  - store/sqlite, store/memory: CatalogWriter implementations
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
)

// CatalogWriter is the administrative write surface the factory loads into.
// Both store implementations satisfy it.
type CatalogWriter interface {
	PutAgent(a commission.Agent) error
	PutManagerRelation(agent, manager commission.AgentID) error
	PutPlan(p commission.Plan) error
	PutPayscale(ps commission.Payscale) error
	PutBaseRate(ps commission.PayscaleID, plan commission.PlanID, rv commission.RateValue) error
	PutRanges(ps commission.PayscaleID, ranges []commission.DateRange) error
	PutOverride(o commission.Override) error
}

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of one channel's catalog.
type CatalogJSON struct {
	Channel   string         `json:"channel"`
	Plans     []PlanJSON     `json:"plans,omitempty"`
	Payscales []PayscaleJSON `json:"payscales,omitempty"`
	Agents    []AgentJSON    `json:"agents,omitempty"`
	Overrides []OverrideJSON `json:"overrides,omitempty"`
}

// PlanJSON declares a sellable product in extract vocabulary.
type PlanJSON struct {
	ID     string  `json:"id,omitempty"`
	Name   string  `json:"name"`
	Payout float64 `json:"payout,omitempty"`
}

// PayscaleJSON represents a payscale with its base rates and ranges.
type PayscaleJSON struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Role              string      `json:"role"` // personal, manager
	UpfrontPercentage *float64    `json:"upfront_percentage,omitempty"`
	BackendPercentage *float64    `json:"backend_percentage,omitempty"`
	Rates             []RateJSON  `json:"rates,omitempty"`
	Ranges            []RangeJSON `json:"ranges,omitempty"`
}

// RateJSON is one rate row, keyed by plan name.
type RateJSON struct {
	Plan    string  `json:"plan"`
	Base    float64 `json:"base"`
	Upgrade float64 `json:"upgrade,omitempty"`
}

// RangeJSON is a dated refinement. Dates are YYYY-MM-DD, end omitted for
// open-ended ranges.
type RangeJSON struct {
	ID    string     `json:"id,omitempty"`
	Start string     `json:"start"`
	End   string     `json:"end,omitempty"`
	Rates []RateJSON `json:"rates"`
}

// AgentJSON represents an agent record with its payscale links.
type AgentJSON struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Identifier       string `json:"identifier,omitempty"`
	FidiumIdentifier string `json:"fidium_identifier,omitempty"`
	IsManager        bool   `json:"is_manager,omitempty"`
	Manager          string `json:"manager,omitempty"`

	PersonalPayscale       string `json:"personal_payscale,omitempty"`
	ManagerPayscale        string `json:"manager_payscale,omitempty"`
	FidiumPersonalPayscale string `json:"fidium_personal_payscale,omitempty"`
	FidiumManagerPayscale  string `json:"fidium_manager_payscale,omitempty"`
}

// OverrideJSON represents a (manager, agent, plan) override rule.
type OverrideJSON struct {
	ID      string      `json:"id,omitempty"`
	Manager string      `json:"manager"`
	Agent   string      `json:"agent"`
	Plan    string      `json:"plan"`
	Base    float64     `json:"base"`
	Upgrade float64     `json:"upgrade,omitempty"`
	Ranges  []RangeJSON `json:"ranges,omitempty"`
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalog definitions to commission structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// Load parses a JSON catalog document and writes it through the writer.
func (f *CatalogFactory) Load(jsonStr string, w CatalogWriter) error {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return fmt.Errorf("failed to parse catalog JSON: %w", err)
	}
	return f.FromJSON(cj, w)
}

// FromJSON converts a CatalogJSON document and writes it through the writer.
// Plans referenced by rate rows are created implicitly if not declared.
func (f *CatalogFactory) FromJSON(cj CatalogJSON, w CatalogWriter) error {
	ch, err := parseChannel(cj.Channel)
	if err != nil {
		return err
	}

	// Resolve the document's plan names to IDs up front. Rate rows may
	// reference plans never declared in the plans block.
	planIDs := make(map[string]commission.PlanID)
	for _, pj := range cj.Plans {
		id := commission.PlanID(pj.ID)
		if id == "" {
			id = commission.PlanID(uuid.NewString())
		}
		planIDs[pj.Name] = id
		plan := commission.Plan{
			ID:           id,
			Name:         pj.Name,
			Channel:      ch,
			PayoutAmount: commission.Dollars(pj.Payout),
		}
		if err := w.PutPlan(plan); err != nil {
			return fmt.Errorf("plan %q: %w", pj.Name, err)
		}
	}
	resolvePlan := func(name string) (commission.PlanID, error) {
		if id, ok := planIDs[name]; ok {
			return id, nil
		}
		id := commission.PlanID(uuid.NewString())
		planIDs[name] = id
		if err := w.PutPlan(commission.Plan{ID: id, Name: name, Channel: ch}); err != nil {
			return "", fmt.Errorf("plan %q: %w", name, err)
		}
		return id, nil
	}

	for _, pj := range cj.Payscales {
		if err := f.loadPayscale(pj, ch, w, resolvePlan); err != nil {
			return err
		}
	}

	for _, aj := range cj.Agents {
		agent := commission.Agent{
			ID:                       commission.AgentID(aj.ID),
			Name:                     aj.Name,
			Identifier:               aj.Identifier,
			FidiumIdentifier:         aj.FidiumIdentifier,
			IsManager:                aj.IsManager,
			PersonalPayscaleID:       payscaleLink(aj.PersonalPayscale),
			ManagerPayscaleID:        payscaleLink(aj.ManagerPayscale),
			FidiumPersonalPayscaleID: payscaleLink(aj.FidiumPersonalPayscale),
			FidiumManagerPayscaleID:  payscaleLink(aj.FidiumManagerPayscale),
		}
		if err := w.PutAgent(agent); err != nil {
			return fmt.Errorf("agent %q: %w", aj.ID, err)
		}
		if aj.Manager != "" {
			if err := w.PutManagerRelation(agent.ID, commission.AgentID(aj.Manager)); err != nil {
				return fmt.Errorf("agent %q manager link: %w", aj.ID, err)
			}
		}
	}

	for _, oj := range cj.Overrides {
		planID, err := resolvePlan(oj.Plan)
		if err != nil {
			return err
		}
		ranges, err := parseRanges(oj.Ranges, resolvePlan)
		if err != nil {
			return fmt.Errorf("override %s/%s: %w", oj.Manager, oj.Agent, err)
		}
		id := commission.OverrideID(oj.ID)
		if id == "" {
			id = commission.OverrideID(uuid.NewString())
		}
		o := commission.Override{
			ID:        id,
			Channel:   ch,
			ManagerID: commission.AgentID(oj.Manager),
			AgentID:   commission.AgentID(oj.Agent),
			PlanID:    planID,
			Value: commission.RateValue{
				Base:    commission.Dollars(oj.Base),
				Upgrade: commission.Dollars(oj.Upgrade),
			},
			Ranges: ranges,
		}
		if err := w.PutOverride(o); err != nil {
			return fmt.Errorf("override %s/%s: %w", oj.Manager, oj.Agent, err)
		}
	}

	return nil
}

func (f *CatalogFactory) loadPayscale(pj PayscaleJSON, ch commission.ChannelID, w CatalogWriter, resolvePlan func(string) (commission.PlanID, error)) error {
	role, err := parseRole(pj.Role)
	if err != nil {
		return fmt.Errorf("payscale %q: %w", pj.ID, err)
	}

	ps := commission.Payscale{
		ID:                commission.PayscaleID(pj.ID),
		Name:              pj.Name,
		Role:              role,
		Channel:           ch,
		UpfrontPercentage: decimalLink(pj.UpfrontPercentage),
		BackendPercentage: decimalLink(pj.BackendPercentage),
	}
	if err := w.PutPayscale(ps); err != nil {
		return fmt.Errorf("payscale %q: %w", pj.ID, err)
	}

	for _, rj := range pj.Rates {
		planID, err := resolvePlan(rj.Plan)
		if err != nil {
			return err
		}
		rv := commission.RateValue{
			Base:    commission.Dollars(rj.Base),
			Upgrade: commission.Dollars(rj.Upgrade),
		}
		if err := w.PutBaseRate(ps.ID, planID, rv); err != nil {
			return fmt.Errorf("payscale %q rate %q: %w", pj.ID, rj.Plan, err)
		}
	}

	ranges, err := parseRanges(pj.Ranges, resolvePlan)
	if err != nil {
		return fmt.Errorf("payscale %q: %w", pj.ID, err)
	}
	if len(ranges) > 0 {
		if err := w.PutRanges(ps.ID, ranges); err != nil {
			return fmt.Errorf("payscale %q ranges: %w", pj.ID, err)
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseChannel(s string) (commission.ChannelID, error) {
	switch s {
	case "normal":
		return commission.ChannelNormal, nil
	case "fidium":
		return commission.ChannelFidium, nil
	default:
		return "", fmt.Errorf("unknown channel: %q", s)
	}
}

func parseRole(s string) (commission.Role, error) {
	switch s {
	case "personal", "":
		return commission.RolePersonal, nil
	case "manager":
		return commission.RoleManager, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

func parseRanges(rjs []RangeJSON, resolvePlan func(string) (commission.PlanID, error)) ([]commission.DateRange, error) {
	var ranges []commission.DateRange
	for _, rj := range rjs {
		start, err := time.Parse("2006-01-02", rj.Start)
		if err != nil {
			return nil, fmt.Errorf("invalid range start %q: %w", rj.Start, err)
		}
		dr := commission.DateRange{
			ID:    rj.ID,
			Start: start,
			Rates: make(map[commission.PlanID]commission.RateValue, len(rj.Rates)),
		}
		if dr.ID == "" {
			dr.ID = uuid.NewString()
		}
		if rj.End != "" {
			end, err := time.Parse("2006-01-02", rj.End)
			if err != nil {
				return nil, fmt.Errorf("invalid range end %q: %w", rj.End, err)
			}
			dr.End = &end
		}
		for _, rateJSON := range rj.Rates {
			planID, err := resolvePlan(rateJSON.Plan)
			if err != nil {
				return nil, err
			}
			dr.Rates[planID] = commission.RateValue{
				Base:    commission.Dollars(rateJSON.Base),
				Upgrade: commission.Dollars(rateJSON.Upgrade),
			}
		}
		ranges = append(ranges, dr)
	}
	return ranges, nil
}

func payscaleLink(id string) *commission.PayscaleID {
	if id == "" {
		return nil
	}
	ps := commission.PayscaleID(id)
	return &ps
}

func decimalLink(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
