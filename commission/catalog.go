/*
catalog.go - Per-run lookup context and the catalog persistence boundary

PURPOSE:
  A reconciliation run makes thousands of agent/plan/rate lookups against
  data that does not change mid-run. Catalog is the explicit context object
  that holds all of it: loaded once from the CatalogStore before the row
  loop, passed into the resolver, discarded when the run ends. No package
  level caches, no globals.

KEY TYPES:
  Catalog:      In-memory snapshot of agents, plans, payscales, rates,
                date ranges, overrides, and manager relations for one channel
  CatalogStore: The persistence interface the snapshot is loaded from; also
                receives the plans and agents discovered during ingestion

SEE ALSO:
  - resolve.go: The only consumer of Catalog lookups
  - store/sqlite: Production implementation of CatalogStore
  - store/memory: Test implementation
*/
package commission

import "context"

// =============================================================================
// CATALOG - One run's immutable lookup snapshot
// =============================================================================

type Catalog struct {
	Channel ChannelID

	Agents    map[AgentID]*Agent
	Plans     map[PlanID]*Plan
	Payscales map[PayscaleID]*Payscale

	// BaseRates holds the single base row per (payscale, plan).
	BaseRates map[RateKey]RateValue

	// Ranges holds the dated refinements attached to each payscale.
	Ranges map[PayscaleID][]DateRange

	// Overrides are keyed by the full (manager, agent, plan) triple.
	Overrides map[OverrideKey]*Override

	// Managers maps each managed agent to its manager. Flat: a manager's
	// own manager, if any, is never walked.
	Managers map[AgentID]AgentID

	agentsByIdentifier map[string]*Agent
	plansByName        map[string]*Plan
}

type RateKey struct {
	Payscale PayscaleID
	Plan     PlanID
}

type OverrideKey struct {
	Manager AgentID
	Agent   AgentID
	Plan    PlanID
}

// NewCatalog builds the snapshot and its lookup indexes. Agents are indexed
// by their identifier for the given channel; plans by trimmed name.
func NewCatalog(ch ChannelID) *Catalog {
	return &Catalog{
		Channel:            ch,
		Agents:             make(map[AgentID]*Agent),
		Plans:              make(map[PlanID]*Plan),
		Payscales:          make(map[PayscaleID]*Payscale),
		BaseRates:          make(map[RateKey]RateValue),
		Ranges:             make(map[PayscaleID][]DateRange),
		Overrides:          make(map[OverrideKey]*Override),
		Managers:           make(map[AgentID]AgentID),
		agentsByIdentifier: make(map[string]*Agent),
		plansByName:        make(map[string]*Plan),
	}
}

// AddAgent registers an agent and indexes its channel identifier.
func (c *Catalog) AddAgent(a *Agent) {
	c.Agents[a.ID] = a
	if key := a.ChannelIdentifier(c.Channel); key != "" {
		c.agentsByIdentifier[key] = a
	}
}

// AddPlan registers a plan and indexes it by name.
func (c *Catalog) AddPlan(p *Plan) {
	c.Plans[p.ID] = p
	if p.Name != "" {
		c.plansByName[p.Name] = p
	}
}

// AddOverride registers a (manager, agent, plan) override.
func (c *Catalog) AddOverride(o *Override) {
	c.Overrides[OverrideKey{Manager: o.ManagerID, Agent: o.AgentID, Plan: o.PlanID}] = o
}

// AgentBySeller finds the agent whose channel identifier matches an extract
// row's seller field. Returns nil when the seller is unknown.
func (c *Catalog) AgentBySeller(identifier string) *Agent {
	return c.agentsByIdentifier[identifier]
}

// PlanByName finds a plan by its extract vocabulary name.
func (c *Catalog) PlanByName(name string) *Plan {
	return c.plansByName[name]
}

// ManagerOf returns the agent's manager, if the relation exists.
func (c *Catalog) ManagerOf(agent AgentID) (AgentID, bool) {
	m, ok := c.Managers[agent]
	return m, ok
}

// Override returns the override for a (manager, agent, plan) triple, or nil.
func (c *Catalog) Override(manager, agent AgentID, plan PlanID) *Override {
	return c.Overrides[OverrideKey{Manager: manager, Agent: agent, Plan: plan}]
}

// BaseRate returns the base row for (payscale, plan), if one exists.
func (c *Catalog) BaseRate(ps PayscaleID, plan PlanID) (RateValue, bool) {
	rv, ok := c.BaseRates[RateKey{Payscale: ps, Plan: plan}]
	return rv, ok
}

// RangesOf returns the dated refinements attached to a payscale.
func (c *Catalog) RangesOf(ps PayscaleID) []DateRange {
	return c.Ranges[ps]
}

// =============================================================================
// CATALOG STORE - Persistence boundary for catalog data
// =============================================================================

// CatalogStore loads catalog snapshots and absorbs the plans and agents a
// reconciliation run discovers in its extracts. Catalog records themselves
// are maintained by an administrative surface outside this engine.
type CatalogStore interface {
	// LoadCatalog returns the full snapshot for one channel.
	LoadCatalog(ctx context.Context, ch ChannelID) (*Catalog, error)

	// UpsertPlan inserts or updates a plan keyed by (channel, name).
	UpsertPlan(ctx context.Context, plan Plan) error

	// UpsertAgentIdentity inserts an agent keyed by its opaque channel
	// identifier, or updates its display name if already present.
	UpsertAgentIdentity(ctx context.Context, ch ChannelID, identifier, name string) error
}
