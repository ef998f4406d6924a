/*
Package memory provides an in-memory implementation of all storage
interfaces, for testing and development.

Implements:
  commission.CatalogStore
  payroll.EntryStore
  payroll.BatchStore
  payroll.AdjustmentStore

Catalog records that the engine only reads (payscales, rates, ranges,
overrides, manager relations) are seeded through the Put* mutators; the
engine-side writers (UpsertPlan, UpsertAgentIdentity, entry upserts) follow
the same contracts the SQLite store honors, including settlement-flag
preservation on entry upserts.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/payroll"
)

type planNameKey struct {
	Channel commission.ChannelID
	Name    string
}

type entryKey struct {
	Kind payroll.RefKind
	Key  string
}

type Store struct {
	mu sync.RWMutex

	agents    map[commission.AgentID]commission.Agent
	managers  map[commission.AgentID]commission.AgentID
	plans     map[commission.PlanID]commission.Plan
	planNames map[planNameKey]commission.PlanID
	payscales map[commission.PayscaleID]commission.Payscale
	baseRates map[commission.RateKey]commission.RateValue
	ranges    map[commission.PayscaleID][]commission.DateRange
	overrides map[commission.OverrideKey]commission.Override

	entries    map[string]payroll.SaleEntry
	entryKeys  map[entryKey]string
	batches    map[payroll.BatchID]payroll.PayrollBatch
	lines      map[payroll.LineID]payroll.PayrollLine
	batchLines map[payroll.BatchID][]payroll.LineID

	adjustments map[payroll.AdjustmentID]payroll.Adjustment
}

var (
	_ commission.CatalogStore = (*Store)(nil)
	_ payroll.EntryStore      = (*Store)(nil)
	_ payroll.BatchStore      = (*Store)(nil)
	_ payroll.AdjustmentStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		agents:      make(map[commission.AgentID]commission.Agent),
		managers:    make(map[commission.AgentID]commission.AgentID),
		plans:       make(map[commission.PlanID]commission.Plan),
		planNames:   make(map[planNameKey]commission.PlanID),
		payscales:   make(map[commission.PayscaleID]commission.Payscale),
		baseRates:   make(map[commission.RateKey]commission.RateValue),
		ranges:      make(map[commission.PayscaleID][]commission.DateRange),
		overrides:   make(map[commission.OverrideKey]commission.Override),
		entries:     make(map[string]payroll.SaleEntry),
		entryKeys:   make(map[entryKey]string),
		batches:     make(map[payroll.BatchID]payroll.PayrollBatch),
		lines:       make(map[payroll.LineID]payroll.PayrollLine),
		batchLines:  make(map[payroll.BatchID][]payroll.LineID),
		adjustments: make(map[payroll.AdjustmentID]payroll.Adjustment),
	}
}

// =============================================================================
// CATALOG SEEDING
// =============================================================================

func (s *Store) PutAgent(a commission.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *Store) PutManagerRelation(agent, manager commission.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.managers[agent] = manager
	return nil
}

func (s *Store) PutPlan(p commission.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[p.ID] = p
	s.planNames[planNameKey{Channel: p.Channel, Name: p.Name}] = p.ID
	return nil
}

func (s *Store) PutPayscale(ps commission.Payscale) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payscales[ps.ID] = ps
	return nil
}

func (s *Store) PutBaseRate(ps commission.PayscaleID, plan commission.PlanID, rv commission.RateValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseRates[commission.RateKey{Payscale: ps, Plan: plan}] = rv
	return nil
}

func (s *Store) PutRanges(ps commission.PayscaleID, ranges []commission.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges[ps] = ranges
	return nil
}

func (s *Store) PutOverride(o commission.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[commission.OverrideKey{Manager: o.ManagerID, Agent: o.AgentID, Plan: o.PlanID}] = o
	return nil
}

// =============================================================================
// CATALOG STORE
// =============================================================================

func (s *Store) LoadCatalog(_ context.Context, ch commission.ChannelID) (*commission.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat := commission.NewCatalog(ch)
	for id := range s.agents {
		a := s.agents[id]
		cat.AddAgent(&a)
	}
	for agent, manager := range s.managers {
		cat.Managers[agent] = manager
	}
	for id := range s.plans {
		if s.plans[id].Channel != ch {
			continue
		}
		p := s.plans[id]
		cat.AddPlan(&p)
	}
	for id := range s.payscales {
		if s.payscales[id].Channel != ch {
			continue
		}
		ps := s.payscales[id]
		cat.Payscales[id] = &ps
	}
	for key, rv := range s.baseRates {
		if ps, ok := s.payscales[key.Payscale]; ok && ps.Channel == ch {
			cat.BaseRates[key] = rv
		}
	}
	for psID, ranges := range s.ranges {
		if ps, ok := s.payscales[psID]; ok && ps.Channel == ch {
			cat.Ranges[psID] = append([]commission.DateRange(nil), ranges...)
		}
	}
	for key := range s.overrides {
		o := s.overrides[key]
		if o.Channel == ch {
			cat.AddOverride(&o)
		}
	}
	return cat, nil
}

func (s *Store) UpsertPlan(_ context.Context, plan commission.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := planNameKey{Channel: plan.Channel, Name: plan.Name}
	if id, ok := s.planNames[key]; ok {
		existing := s.plans[id]
		existing.PayoutAmount = plan.PayoutAmount
		s.plans[id] = existing
		return nil
	}
	plan.ID = commission.PlanID(uuid.NewString())
	s.plans[plan.ID] = plan
	s.planNames[key] = plan.ID
	return nil
}

func (s *Store) UpsertAgentIdentity(_ context.Context, ch commission.ChannelID, identifier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.agents {
		a := s.agents[id]
		if a.ChannelIdentifier(ch) == identifier {
			a.Name = name
			s.agents[id] = a
			return nil
		}
	}
	a := commission.Agent{ID: commission.AgentID(uuid.NewString()), Name: name}
	if ch == commission.ChannelFidium {
		a.FidiumIdentifier = identifier
	} else {
		a.Identifier = identifier
	}
	s.agents[a.ID] = a
	return nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (s *Store) UpsertEntries(_ context.Context, ch commission.Channel, entries []payroll.SaleEntry) ([]payroll.SaleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]payroll.SaleEntry, 0, len(entries))
	for _, e := range entries {
		key := entryKey{Kind: payroll.RefKindFor(e.Channel), Key: e.Key(ch)}
		if id, ok := s.entryKeys[key]; ok {
			existing := s.entries[id]
			// Refresh descriptive fields, keep identity and settlement flags.
			e.ID = existing.ID
			e.FrontendPaid = existing.FrontendPaid
			e.BackendPaid = existing.BackendPaid
		} else {
			e.ID = uuid.NewString()
			s.entryKeys[key] = e.ID
		}
		s.entries[e.ID] = e
		result = append(result, e)
	}
	return result, nil
}

func (s *Store) GetEntries(_ context.Context, refs []payroll.EntryRef) (map[payroll.EntryRef]*payroll.SaleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[payroll.EntryRef]*payroll.SaleEntry, len(refs))
	for _, ref := range refs {
		if e, ok := s.entries[ref.ID]; ok && payroll.RefKindFor(e.Channel) == ref.Kind {
			copied := e
			result[ref] = &copied
		}
	}
	return result, nil
}

func (s *Store) SetEntriesPaid(_ context.Context, refs []payroll.EntryRef, d payroll.Dimension, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ref := range refs {
		e, ok := s.entries[ref.ID]
		if !ok {
			continue
		}
		e.SetPaid(d, paid)
		s.entries[ref.ID] = e
	}
	return nil
}

// =============================================================================
// BATCH STORE
// =============================================================================

func (s *Store) InsertBatch(_ context.Context, batch payroll.PayrollBatch, lines []payroll.PayrollLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[batch.ID] = batch
	ids := make([]payroll.LineID, 0, len(lines))
	for _, line := range lines {
		s.lines[line.ID] = line
		ids = append(ids, line.ID)
	}
	s.batchLines[batch.ID] = ids
	return nil
}

func (s *Store) ListBatches(_ context.Context) ([]payroll.PayrollBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payroll.PayrollBatch, 0, len(s.batches))
	for _, b := range s.batches {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) RenameBatch(_ context.Context, id payroll.BatchID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[id]
	if !ok {
		return payroll.ErrBatchNotFound
	}
	b.Name = name
	s.batches[id] = b
	return nil
}

func (s *Store) DeleteBatch(_ context.Context, id payroll.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.batches[id]; !ok {
		return payroll.ErrBatchNotFound
	}
	for _, lineID := range s.batchLines[id] {
		delete(s.lines, lineID)
	}
	delete(s.batchLines, id)
	delete(s.batches, id)
	return nil
}

func (s *Store) LinesByBatch(_ context.Context, id payroll.BatchID) ([]payroll.PayrollLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.batches[id]; !ok {
		return nil, payroll.ErrBatchNotFound
	}
	result := make([]payroll.PayrollLine, 0, len(s.batchLines[id]))
	for _, lineID := range s.batchLines[id] {
		result = append(result, copyLine(s.lines[lineID]))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (s *Store) GetLine(_ context.Context, id payroll.LineID) (*payroll.PayrollLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	line, ok := s.lines[id]
	if !ok {
		return nil, payroll.ErrLineNotFound
	}
	copied := copyLine(line)
	return &copied, nil
}

func (s *Store) SetLinePaid(_ context.Context, id payroll.LineID, d payroll.Dimension, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, ok := s.lines[id]
	if !ok {
		return payroll.ErrLineNotFound
	}
	line.SetPaid(d, paid)
	s.lines[id] = line
	return nil
}

func copyLine(line payroll.PayrollLine) payroll.PayrollLine {
	line.Details = append([]payroll.LineDetail(nil), line.Details...)
	return line
}

// =============================================================================
// ADJUSTMENT STORE
// =============================================================================

func (s *Store) InsertAdjustment(_ context.Context, a payroll.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adjustments[a.ID] = a
	return nil
}

func (s *Store) UpdateAdjustment(_ context.Context, a payroll.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.adjustments[a.ID]; !ok {
		return payroll.ErrAdjustmentNotFound
	}
	s.adjustments[a.ID] = a
	return nil
}

func (s *Store) DeleteAdjustment(_ context.Context, id payroll.AdjustmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.adjustments[id]; !ok {
		return payroll.ErrAdjustmentNotFound
	}
	delete(s.adjustments, id)
	return nil
}

func (s *Store) GetAdjustment(_ context.Context, id payroll.AdjustmentID) (*payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adjustments[id]
	if !ok {
		return nil, payroll.ErrAdjustmentNotFound
	}
	return &a, nil
}

func (s *Store) ListAdjustments(_ context.Context) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]payroll.Adjustment, 0, len(s.adjustments))
	for _, a := range s.adjustments {
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) OpenAdjustmentsByLine(_ context.Context, id payroll.LineID) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payroll.Adjustment
	for _, a := range s.adjustments {
		if a.LineID != nil && *a.LineID == id && !a.IsCompleted {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}
