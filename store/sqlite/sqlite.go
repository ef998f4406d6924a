/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

INTERFACES IMPLEMENTED:
  commission.CatalogStore: Catalog snapshots plus discovered plans/agents
  payroll.EntryStore:      Canonical sale entries (idempotent upsert)
  payroll.BatchStore:      Batches and their payroll lines
  payroll.AdjustmentStore: Deductions and reimbursements

KEY TABLES:
  agents, manager_relations:   Sellers, flat manager links
  plans:                       Discovered products, UNIQUE(channel, name)
  payscales, plan_rates:       Rate tables; one base row per (payscale, plan)
  date_ranges:                 Dated refinements, per-plan rates as JSON
  overrides:                   (manager, agent, plan) rules, ranges as JSON
  sale_entries:                Canonical entries, UNIQUE(kind, identity_key)
  batches, payroll_lines:      Saved runs; line details as JSON
  adjustments:                 Payout corrections

UPSERT CONTRACT:
  sale_entries upserts match on the channel's identity key. Descriptive
  fields are refreshed; frontend_paid/backend_paid are never touched on an
  existing row. Re-running a reconciliation cannot un-pay anything.

WAL MODE:
  SQLite is opened with WAL so readers don't block during reconciliation
  writes. A single mutex serializes writers.

USAGE:
  store, err := sqlite.New("./data/commission.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - payroll/store.go: Interface definitions and the upsert contract
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/payroll"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var (
	_ commission.CatalogStore = (*Store)(nil)
	_ payroll.EntryStore      = (*Store)(nil)
	_ payroll.BatchStore      = (*Store)(nil)
	_ payroll.AdjustmentStore = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Agents (sellers; managers are agents with is_manager set)
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		identifier TEXT,
		fidium_identifier TEXT,
		is_manager BOOLEAN DEFAULT FALSE,
		personal_payscale_id TEXT,
		manager_payscale_id TEXT,
		fidium_personal_payscale_id TEXT,
		fidium_manager_payscale_id TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_identifier
		ON agents(identifier) WHERE identifier IS NOT NULL AND identifier != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_fidium_identifier
		ON agents(fidium_identifier) WHERE fidium_identifier IS NOT NULL AND fidium_identifier != '';

	-- Manager relations (flat: one manager per agent, never walked upward)
	CREATE TABLE IF NOT EXISTS manager_relations (
		agent_id TEXT PRIMARY KEY,
		manager_id TEXT NOT NULL
	);

	-- Plans (discovered during reconciliation, keyed by channel + name)
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		name TEXT NOT NULL,
		payout_amount TEXT NOT NULL DEFAULT '0',
		UNIQUE(channel, name)
	);

	-- Payscales (per-role rate tables)
	CREATE TABLE IF NOT EXISTS payscales (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		channel TEXT NOT NULL,
		upfront_percentage TEXT,
		backend_percentage TEXT
	);

	-- Base rates: exactly one row per (payscale, plan)
	CREATE TABLE IF NOT EXISTS plan_rates (
		payscale_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		base TEXT NOT NULL,
		upgrade TEXT NOT NULL DEFAULT '0',
		PRIMARY KEY (payscale_id, plan_id)
	);

	-- Dated refinements; per-plan child rates stored as JSON
	CREATE TABLE IF NOT EXISTS date_ranges (
		id TEXT PRIMARY KEY,
		payscale_id TEXT NOT NULL,
		start_at TEXT NOT NULL,
		end_at TEXT,
		rates_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_date_ranges_payscale
		ON date_ranges(payscale_id);

	-- Overrides: one rule per (channel, manager, agent, plan)
	CREATE TABLE IF NOT EXISTS overrides (
		id TEXT PRIMARY KEY,
		channel TEXT NOT NULL,
		manager_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		base TEXT NOT NULL,
		upgrade TEXT NOT NULL DEFAULT '0',
		ranges_json TEXT,
		UNIQUE(channel, manager_id, agent_id, plan_id)
	);

	-- Canonical sale entries; identity_key is the channel's key shape
	CREATE TABLE IF NOT EXISTS sale_entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		channel TEXT NOT NULL,
		identity_key TEXT NOT NULL,
		order_number TEXT NOT NULL,
		plan_name TEXT,
		customer_name TEXT,
		service_address TEXT,
		city TEXT,
		state TEXT,
		seller TEXT,
		submission_date TEXT,
		install_date TEXT,
		frontend_paid BOOLEAN DEFAULT FALSE,
		backend_paid BOOLEAN DEFAULT FALSE,
		UNIQUE(kind, identity_key)
	);

	CREATE INDEX IF NOT EXISTS idx_sale_entries_seller
		ON sale_entries(seller);

	-- Payroll batches
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Payroll lines; entry references and per-entry commissions as JSON
	CREATE TABLE IF NOT EXISTS payroll_lines (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		channel TEXT NOT NULL,
		accounts INTEGER NOT NULL DEFAULT 0,
		personal_total TEXT NOT NULL,
		manager_total TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		upfront_percentage TEXT,
		backend_percentage TEXT,
		upfront_value TEXT,
		backend_value TEXT,
		frontend_paid BOOLEAN DEFAULT FALSE,
		backend_paid BOOLEAN DEFAULT FALSE,
		details_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payroll_lines_batch
		ON payroll_lines(batch_id);

	-- Adjustments (deductions and reimbursements)
	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		type TEXT NOT NULL,
		reason TEXT,
		amount TEXT NOT NULL,
		line_id TEXT,
		is_completed BOOLEAN DEFAULT FALSE,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_line
		ON adjustments(line_id) WHERE line_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// JSON DOCUMENT SHAPES
// =============================================================================

type rateDoc struct {
	Base    string `json:"base"`
	Upgrade string `json:"upgrade"`
}

type rangeDoc struct {
	ID    string             `json:"id"`
	Start string             `json:"start"`
	End   *string            `json:"end,omitempty"`
	Rates map[string]rateDoc `json:"rates"`
}

type detailDoc struct {
	Kind       string `json:"kind"`
	EntryID    string `json:"entry_id"`
	Commission string `json:"commission"`
	IsUpgrade  bool   `json:"is_upgrade,omitempty"`
}

func encodeRateValue(rv commission.RateValue) rateDoc {
	return rateDoc{Base: rv.Base.String(), Upgrade: rv.Upgrade.String()}
}

func decodeRateValue(doc rateDoc) commission.RateValue {
	return commission.RateValue{
		Base:    commission.MustDecimal(doc.Base),
		Upgrade: commission.MustDecimal(doc.Upgrade),
	}
}

func encodeRanges(ranges []commission.DateRange) (string, error) {
	docs := make([]rangeDoc, 0, len(ranges))
	for _, dr := range ranges {
		doc := rangeDoc{
			ID:    dr.ID,
			Start: dr.Start.Format(time.RFC3339),
			Rates: encodeRateMap(dr.Rates),
		}
		if dr.End != nil {
			end := dr.End.Format(time.RFC3339)
			doc.End = &end
		}
		docs = append(docs, doc)
	}
	data, err := json.Marshal(docs)
	return string(data), err
}

func decodeRanges(data string) ([]commission.DateRange, error) {
	if data == "" {
		return nil, nil
	}
	var docs []rangeDoc
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		return nil, err
	}
	ranges := make([]commission.DateRange, 0, len(docs))
	for _, doc := range docs {
		start, err := time.Parse(time.RFC3339, doc.Start)
		if err != nil {
			return nil, fmt.Errorf("bad range start %q: %w", doc.Start, err)
		}
		dr := commission.DateRange{
			ID:    doc.ID,
			Start: start,
			Rates: make(map[commission.PlanID]commission.RateValue, len(doc.Rates)),
		}
		if doc.End != nil {
			end, err := time.Parse(time.RFC3339, *doc.End)
			if err != nil {
				return nil, fmt.Errorf("bad range end %q: %w", *doc.End, err)
			}
			dr.End = &end
		}
		for plan, rv := range doc.Rates {
			dr.Rates[commission.PlanID(plan)] = decodeRateValue(rv)
		}
		ranges = append(ranges, dr)
	}
	return ranges, nil
}

func encodeRateMap(rates map[commission.PlanID]commission.RateValue) map[string]rateDoc {
	out := make(map[string]rateDoc, len(rates))
	for plan, rv := range rates {
		out[string(plan)] = encodeRateValue(rv)
	}
	return out
}

// =============================================================================
// CATALOG WRITERS (admin/seeding surface)
// =============================================================================

// PutAgent saves an agent record, replacing any existing row.
func (s *Store) PutAgent(a commission.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO agents
		(id, name, identifier, fidium_identifier, is_manager,
		 personal_payscale_id, manager_payscale_id,
		 fidium_personal_payscale_id, fidium_manager_payscale_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			identifier = excluded.identifier,
			fidium_identifier = excluded.fidium_identifier,
			is_manager = excluded.is_manager,
			personal_payscale_id = excluded.personal_payscale_id,
			manager_payscale_id = excluded.manager_payscale_id,
			fidium_personal_payscale_id = excluded.fidium_personal_payscale_id,
			fidium_manager_payscale_id = excluded.fidium_manager_payscale_id
	`

	_, err := s.db.Exec(query,
		a.ID, a.Name, a.Identifier, a.FidiumIdentifier, a.IsManager,
		nullPayscale(a.PersonalPayscaleID), nullPayscale(a.ManagerPayscaleID),
		nullPayscale(a.FidiumPersonalPayscaleID), nullPayscale(a.FidiumManagerPayscaleID),
	)
	return err
}

// PutManagerRelation links an agent to its manager.
func (s *Store) PutManagerRelation(agent, manager commission.AgentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO manager_relations (agent_id, manager_id)
		VALUES (?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET manager_id = excluded.manager_id
	`
	_, err := s.db.Exec(query, agent, manager)
	return err
}

// PutPlan saves a plan with a known ID, replacing any existing row.
func (s *Store) PutPlan(p commission.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO plans (id, channel, name, payout_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			channel = excluded.channel,
			name = excluded.name,
			payout_amount = excluded.payout_amount
	`
	_, err := s.db.Exec(query, p.ID, p.Channel, p.Name, p.PayoutAmount.String())
	return err
}

// PutPayscale saves a payscale record.
func (s *Store) PutPayscale(ps commission.Payscale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payscales (id, name, role, channel, upfront_percentage, backend_percentage)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			channel = excluded.channel,
			upfront_percentage = excluded.upfront_percentage,
			backend_percentage = excluded.backend_percentage
	`
	_, err := s.db.Exec(query, ps.ID, ps.Name, ps.Role, ps.Channel,
		nullDecimal(ps.UpfrontPercentage), nullDecimal(ps.BackendPercentage))
	return err
}

// PutBaseRate saves the base rate row for a (payscale, plan) pairing.
func (s *Store) PutBaseRate(ps commission.PayscaleID, plan commission.PlanID, rv commission.RateValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO plan_rates (payscale_id, plan_id, base, upgrade)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(payscale_id, plan_id) DO UPDATE SET
			base = excluded.base,
			upgrade = excluded.upgrade
	`
	_, err := s.db.Exec(query, ps, plan, rv.Base.String(), rv.Upgrade.String())
	return err
}

// PutRanges replaces all dated refinements of a payscale.
func (s *Store) PutRanges(ps commission.PayscaleID, ranges []commission.DateRange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM date_ranges WHERE payscale_id = ?", ps); err != nil {
		return err
	}
	for _, dr := range ranges {
		ratesJSON, err := json.Marshal(encodeRateMap(dr.Rates))
		if err != nil {
			return err
		}
		var end *string
		if dr.End != nil {
			e := dr.End.Format(time.RFC3339)
			end = &e
		}
		_, err = tx.Exec(
			"INSERT INTO date_ranges (id, payscale_id, start_at, end_at, rates_json) VALUES (?, ?, ?, ?, ?)",
			dr.ID, ps, dr.Start.Format(time.RFC3339), end, string(ratesJSON),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PutOverride saves a (manager, agent, plan) override rule.
func (s *Store) PutOverride(o commission.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rangesJSON, err := encodeRanges(o.Ranges)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO overrides (id, channel, manager_id, agent_id, plan_id, base, upgrade, ranges_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel, manager_id, agent_id, plan_id) DO UPDATE SET
			base = excluded.base,
			upgrade = excluded.upgrade,
			ranges_json = excluded.ranges_json
	`
	_, err = s.db.Exec(query, o.ID, o.Channel, o.ManagerID, o.AgentID, o.PlanID,
		o.Value.Base.String(), o.Value.Upgrade.String(), rangesJSON)
	return err
}

// =============================================================================
// CATALOG STORE (commission.CatalogStore interface)
// =============================================================================

// LoadCatalog returns the full lookup snapshot for one channel.
func (s *Store) LoadCatalog(ctx context.Context, ch commission.ChannelID) (*commission.Catalog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat := commission.NewCatalog(ch)

	if err := s.loadAgents(ctx, cat); err != nil {
		return nil, err
	}
	if err := s.loadManagerRelations(ctx, cat); err != nil {
		return nil, err
	}
	if err := s.loadPlans(ctx, cat, ch); err != nil {
		return nil, err
	}
	if err := s.loadPayscales(ctx, cat, ch); err != nil {
		return nil, err
	}
	if err := s.loadBaseRates(ctx, cat); err != nil {
		return nil, err
	}
	if err := s.loadRanges(ctx, cat); err != nil {
		return nil, err
	}
	if err := s.loadOverrides(ctx, cat, ch); err != nil {
		return nil, err
	}

	return cat, nil
}

func (s *Store) loadAgents(ctx context.Context, cat *commission.Catalog) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, identifier, fidium_identifier, is_manager,
		       personal_payscale_id, manager_payscale_id,
		       fidium_personal_payscale_id, fidium_manager_payscale_id
		FROM agents
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var a commission.Agent
		var identifier, fidiumIdentifier sql.NullString
		var personal, manager, fidiumPersonal, fidiumManager sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &identifier, &fidiumIdentifier, &a.IsManager,
			&personal, &manager, &fidiumPersonal, &fidiumManager); err != nil {
			return err
		}
		a.Identifier = identifier.String
		a.FidiumIdentifier = fidiumIdentifier.String
		a.PersonalPayscaleID = payscalePtr(personal)
		a.ManagerPayscaleID = payscalePtr(manager)
		a.FidiumPersonalPayscaleID = payscalePtr(fidiumPersonal)
		a.FidiumManagerPayscaleID = payscalePtr(fidiumManager)
		copied := a
		cat.AddAgent(&copied)
	}
	return rows.Err()
}

func (s *Store) loadManagerRelations(ctx context.Context, cat *commission.Catalog) error {
	rows, err := s.db.QueryContext(ctx, "SELECT agent_id, manager_id FROM manager_relations")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var agent, manager commission.AgentID
		if err := rows.Scan(&agent, &manager); err != nil {
			return err
		}
		cat.Managers[agent] = manager
	}
	return rows.Err()
}

func (s *Store) loadPlans(ctx context.Context, cat *commission.Catalog, ch commission.ChannelID) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, channel, name, payout_amount FROM plans WHERE channel = ?", ch)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p commission.Plan
		var payout string
		if err := rows.Scan(&p.ID, &p.Channel, &p.Name, &payout); err != nil {
			return err
		}
		p.PayoutAmount = commission.MustDecimal(payout)
		copied := p
		cat.AddPlan(&copied)
	}
	return rows.Err()
}

func (s *Store) loadPayscales(ctx context.Context, cat *commission.Catalog, ch commission.ChannelID) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, channel, upfront_percentage, backend_percentage
		FROM payscales WHERE channel = ?
	`, ch)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ps commission.Payscale
		var upfront, backend sql.NullString
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.Role, &ps.Channel, &upfront, &backend); err != nil {
			return err
		}
		ps.UpfrontPercentage = decimalPtr(upfront)
		ps.BackendPercentage = decimalPtr(backend)
		copied := ps
		cat.Payscales[ps.ID] = &copied
	}
	return rows.Err()
}

func (s *Store) loadBaseRates(ctx context.Context, cat *commission.Catalog) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payscale_id, plan_id, base, upgrade FROM plan_rates")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var psID commission.PayscaleID
		var planID commission.PlanID
		var base, upgrade string
		if err := rows.Scan(&psID, &planID, &base, &upgrade); err != nil {
			return err
		}
		if _, ok := cat.Payscales[psID]; !ok {
			continue
		}
		cat.BaseRates[commission.RateKey{Payscale: psID, Plan: planID}] = commission.RateValue{
			Base:    commission.MustDecimal(base),
			Upgrade: commission.MustDecimal(upgrade),
		}
	}
	return rows.Err()
}

func (s *Store) loadRanges(ctx context.Context, cat *commission.Catalog) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payscale_id, start_at, end_at, rates_json
		FROM date_ranges
		ORDER BY start_at ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var psID commission.PayscaleID
		var startAt, ratesJSON string
		var endAt sql.NullString
		if err := rows.Scan(&id, &psID, &startAt, &endAt, &ratesJSON); err != nil {
			return err
		}
		if _, ok := cat.Payscales[psID]; !ok {
			continue
		}
		start, err := time.Parse(time.RFC3339, startAt)
		if err != nil {
			return fmt.Errorf("bad range start %q: %w", startAt, err)
		}
		dr := commission.DateRange{ID: id, Start: start}
		if endAt.Valid {
			end, err := time.Parse(time.RFC3339, endAt.String)
			if err != nil {
				return fmt.Errorf("bad range end %q: %w", endAt.String, err)
			}
			dr.End = &end
		}
		var docs map[string]rateDoc
		if err := json.Unmarshal([]byte(ratesJSON), &docs); err != nil {
			return err
		}
		dr.Rates = make(map[commission.PlanID]commission.RateValue, len(docs))
		for plan, doc := range docs {
			dr.Rates[commission.PlanID(plan)] = decodeRateValue(doc)
		}
		cat.Ranges[psID] = append(cat.Ranges[psID], dr)
	}
	return rows.Err()
}

func (s *Store) loadOverrides(ctx context.Context, cat *commission.Catalog, ch commission.ChannelID) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel, manager_id, agent_id, plan_id, base, upgrade, ranges_json
		FROM overrides WHERE channel = ?
	`, ch)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var o commission.Override
		var base, upgrade string
		var rangesJSON sql.NullString
		if err := rows.Scan(&o.ID, &o.Channel, &o.ManagerID, &o.AgentID, &o.PlanID,
			&base, &upgrade, &rangesJSON); err != nil {
			return err
		}
		o.Value = commission.RateValue{
			Base:    commission.MustDecimal(base),
			Upgrade: commission.MustDecimal(upgrade),
		}
		if rangesJSON.Valid {
			ranges, err := decodeRanges(rangesJSON.String)
			if err != nil {
				return err
			}
			o.Ranges = ranges
		}
		copied := o
		cat.AddOverride(&copied)
	}
	return rows.Err()
}

// UpsertPlan inserts or updates a plan keyed by (channel, name).
func (s *Store) UpsertPlan(ctx context.Context, plan commission.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if plan.ID == "" {
		plan.ID = commission.PlanID(uuid.NewString())
	}
	query := `
		INSERT INTO plans (id, channel, name, payout_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel, name) DO UPDATE SET
			payout_amount = excluded.payout_amount
	`
	_, err := s.db.ExecContext(ctx, query, plan.ID, plan.Channel, plan.Name, plan.PayoutAmount.String())
	return err
}

// UpsertAgentIdentity inserts an agent keyed by its channel identifier, or
// refreshes its display name if the identifier is already known.
func (s *Store) UpsertAgentIdentity(ctx context.Context, ch commission.ChannelID, identifier, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	column := "identifier"
	if ch == commission.ChannelFidium {
		column = "fidium_identifier"
	}

	// The conflict target must repeat the partial index predicate, or
	// SQLite refuses to match the upsert to the unique index.
	query := fmt.Sprintf(`
		INSERT INTO agents (id, name, %s)
		VALUES (?, ?, ?)
		ON CONFLICT(%s) WHERE %s IS NOT NULL AND %s != ''
		DO UPDATE SET name = excluded.name
	`, column, column, column, column)

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), name, identifier)
	return err
}

// =============================================================================
// ENTRY STORE (payroll.EntryStore interface)
// =============================================================================

// UpsertEntries reconciles entries keyed by the channel's identity key.
// Descriptive fields are refreshed; settlement flags on existing rows are
// preserved. Returns canonical entries, store IDs assigned, in input order.
func (s *Store) UpsertEntries(ctx context.Context, ch commission.Channel, entries []payroll.SaleEntry) ([]payroll.SaleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := make([]payroll.SaleEntry, 0, len(entries))
	for _, e := range entries {
		kind := payroll.RefKindFor(e.Channel)
		key := e.Key(ch)

		var existingID string
		var frontendPaid, backendPaid bool
		err := tx.QueryRowContext(ctx,
			"SELECT id, frontend_paid, backend_paid FROM sale_entries WHERE kind = ? AND identity_key = ?",
			kind, key,
		).Scan(&existingID, &frontendPaid, &backendPaid)

		switch {
		case err == sql.ErrNoRows:
			e.ID = uuid.NewString()
			e.FrontendPaid = false
			e.BackendPaid = false
			_, err = tx.ExecContext(ctx, `
				INSERT INTO sale_entries
				(id, kind, channel, identity_key, order_number, plan_name,
				 customer_name, service_address, city, state, seller,
				 submission_date, install_date, frontend_paid, backend_paid)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, FALSE, FALSE)
			`, e.ID, kind, e.Channel, key, e.OrderNumber, e.PlanName,
				e.CustomerName, e.ServiceAddress, e.City, e.State, e.Seller,
				nullTime(e.SubmissionDate), nullTime(e.InstallDate))
			if err != nil {
				return nil, fmt.Errorf("failed to insert entry: %w", err)
			}
		case err != nil:
			return nil, fmt.Errorf("failed to look up entry: %w", err)
		default:
			e.ID = existingID
			e.FrontendPaid = frontendPaid
			e.BackendPaid = backendPaid
			_, err = tx.ExecContext(ctx, `
				UPDATE sale_entries SET
					order_number = ?, plan_name = ?, customer_name = ?,
					service_address = ?, city = ?, state = ?, seller = ?,
					submission_date = ?, install_date = ?
				WHERE id = ?
			`, e.OrderNumber, e.PlanName, e.CustomerName,
				e.ServiceAddress, e.City, e.State, e.Seller,
				nullTime(e.SubmissionDate), nullTime(e.InstallDate), e.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to update entry: %w", err)
			}
		}
		result = append(result, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEntries resolves tagged references. Unknown references are absent from
// the result map.
func (s *Store) GetEntries(ctx context.Context, refs []payroll.EntryRef) (map[payroll.EntryRef]*payroll.SaleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[payroll.EntryRef]*payroll.SaleEntry, len(refs))
	for _, ref := range refs {
		e, err := s.getEntry(ctx, ref)
		if err != nil {
			return nil, err
		}
		if e != nil {
			result[ref] = e
		}
	}
	return result, nil
}

func (s *Store) getEntry(ctx context.Context, ref payroll.EntryRef) (*payroll.SaleEntry, error) {
	var e payroll.SaleEntry
	var planName, customerName, serviceAddress, city, state, seller sql.NullString
	var submissionDate, installDate sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, channel, order_number, plan_name, customer_name,
		       service_address, city, state, seller,
		       submission_date, install_date, frontend_paid, backend_paid
		FROM sale_entries WHERE id = ? AND kind = ?
	`, ref.ID, ref.Kind).Scan(
		&e.ID, &e.Channel, &e.OrderNumber, &planName, &customerName,
		&serviceAddress, &city, &state, &seller,
		&submissionDate, &installDate, &e.FrontendPaid, &e.BackendPaid,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load entry: %w", err)
	}

	e.PlanName = planName.String
	e.CustomerName = customerName.String
	e.ServiceAddress = serviceAddress.String
	e.City = city.String
	e.State = state.String
	e.Seller = seller.String
	e.SubmissionDate = timePtr(submissionDate)
	e.InstallDate = timePtr(installDate)
	return &e, nil
}

// SetEntriesPaid writes one settlement flag on every referenced entry.
func (s *Store) SetEntriesPaid(ctx context.Context, refs []payroll.EntryRef, d payroll.Dimension, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	column := "frontend_paid"
	if d == payroll.DimensionBackend {
		column = "backend_paid"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("UPDATE sale_entries SET %s = ? WHERE id = ? AND kind = ?", column)
	for _, ref := range refs {
		if _, err := tx.ExecContext(ctx, query, paid, ref.ID, ref.Kind); err != nil {
			return fmt.Errorf("failed to set entry paid: %w", err)
		}
	}
	return tx.Commit()
}

// =============================================================================
// BATCH STORE (payroll.BatchStore interface)
// =============================================================================

// InsertBatch persists a batch and its lines atomically.
func (s *Store) InsertBatch(ctx context.Context, batch payroll.PayrollBatch, lines []payroll.PayrollLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO batches (id, name, created_at) VALUES (?, ?, ?)",
		batch.ID, batch.Name, batch.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}

	for _, line := range lines {
		detailsJSON, err := encodeDetails(line.Details)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO payroll_lines
			(id, batch_id, agent_id, name, channel, accounts,
			 personal_total, manager_total, grand_total,
			 upfront_percentage, backend_percentage, upfront_value, backend_value,
			 frontend_paid, backend_paid, details_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, line.ID, line.BatchID, line.AgentID, line.Name, line.Channel, line.Accounts,
			line.PersonalTotal.String(), line.ManagerTotal.String(), line.GrandTotal.String(),
			nullDecimal(line.UpfrontPercentage), nullDecimal(line.BackendPercentage),
			nullDecimal(line.UpfrontValue), nullDecimal(line.BackendValue),
			line.FrontendIsPaid, line.BackendIsPaid, detailsJSON)
		if err != nil {
			return fmt.Errorf("failed to insert line: %w", err)
		}
	}

	return tx.Commit()
}

// ListBatches returns all batches, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]payroll.PayrollBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM batches ORDER BY created_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []payroll.PayrollBatch
	for rows.Next() {
		var b payroll.PayrollBatch
		var createdAt string
		if err := rows.Scan(&b.ID, &b.Name, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// RenameBatch updates a batch's display name.
func (s *Store) RenameBatch(ctx context.Context, id payroll.BatchID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE batches SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrBatchNotFound)
}

// DeleteBatch removes a batch; its lines cascade. Entries stay.
func (s *Store) DeleteBatch(ctx context.Context, id payroll.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrBatchNotFound)
}

// LinesByBatch returns a batch's lines sorted by display name.
func (s *Store) LinesByBatch(ctx context.Context, id payroll.BatchID) ([]payroll.PayrollLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM batches WHERE id = ?", id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, payroll.ErrBatchNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, agent_id, name, channel, accounts,
		       personal_total, manager_total, grand_total,
		       upfront_percentage, backend_percentage, upfront_value, backend_value,
		       frontend_paid, backend_paid, details_json
		FROM payroll_lines
		WHERE batch_id = ?
		ORDER BY name ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []payroll.PayrollLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetLine retrieves one payroll line.
func (s *Store) GetLine(ctx context.Context, id payroll.LineID) (*payroll.PayrollLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, batch_id, agent_id, name, channel, accounts,
		       personal_total, manager_total, grand_total,
		       upfront_percentage, backend_percentage, upfront_value, backend_value,
		       frontend_paid, backend_paid, details_json
		FROM payroll_lines WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, payroll.ErrLineNotFound
	}
	line, err := scanLine(rows)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// SetLinePaid writes one settlement flag on a line.
func (s *Store) SetLinePaid(ctx context.Context, id payroll.LineID, d payroll.Dimension, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	column := "frontend_paid"
	if d == payroll.DimensionBackend {
		column = "backend_paid"
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE payroll_lines SET %s = ? WHERE id = ?", column), paid, id)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrLineNotFound)
}

func scanLine(rows *sql.Rows) (payroll.PayrollLine, error) {
	var line payroll.PayrollLine
	var personalTotal, managerTotal, grandTotal, detailsJSON string
	var upfrontPct, backendPct, upfrontVal, backendVal sql.NullString

	err := rows.Scan(
		&line.ID, &line.BatchID, &line.AgentID, &line.Name, &line.Channel, &line.Accounts,
		&personalTotal, &managerTotal, &grandTotal,
		&upfrontPct, &backendPct, &upfrontVal, &backendVal,
		&line.FrontendIsPaid, &line.BackendIsPaid, &detailsJSON,
	)
	if err != nil {
		return line, fmt.Errorf("failed to scan line: %w", err)
	}

	line.PersonalTotal = commission.MustDecimal(personalTotal)
	line.ManagerTotal = commission.MustDecimal(managerTotal)
	line.GrandTotal = commission.MustDecimal(grandTotal)
	line.UpfrontPercentage = decimalPtr(upfrontPct)
	line.BackendPercentage = decimalPtr(backendPct)
	line.UpfrontValue = decimalPtr(upfrontVal)
	line.BackendValue = decimalPtr(backendVal)

	details, err := decodeDetails(detailsJSON)
	if err != nil {
		return line, err
	}
	line.Details = details
	return line, nil
}

func encodeDetails(details []payroll.LineDetail) (string, error) {
	docs := make([]detailDoc, 0, len(details))
	for _, d := range details {
		docs = append(docs, detailDoc{
			Kind:       string(d.Ref.Kind),
			EntryID:    d.Ref.ID,
			Commission: d.PersonalCommission.String(),
			IsUpgrade:  d.IsUpgrade,
		})
	}
	data, err := json.Marshal(docs)
	return string(data), err
}

func decodeDetails(data string) ([]payroll.LineDetail, error) {
	var docs []detailDoc
	if err := json.Unmarshal([]byte(data), &docs); err != nil {
		return nil, err
	}
	details := make([]payroll.LineDetail, 0, len(docs))
	for _, doc := range docs {
		details = append(details, payroll.LineDetail{
			Ref:                payroll.EntryRef{Kind: payroll.RefKind(doc.Kind), ID: doc.EntryID},
			PersonalCommission: commission.MustDecimal(doc.Commission),
			IsUpgrade:          doc.IsUpgrade,
		})
	}
	return details, nil
}

// =============================================================================
// ADJUSTMENT STORE (payroll.AdjustmentStore interface)
// =============================================================================

// InsertAdjustment saves a new adjustment.
func (s *Store) InsertAdjustment(ctx context.Context, a payroll.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO adjustments
		(id, agent_id, type, reason, amount, line_id, is_completed, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.AgentID, a.Type, a.Reason, a.Amount.String(),
		nullLine(a.LineID), a.IsCompleted, nullTime(a.CompletedAt),
		a.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// UpdateAdjustment rewrites an existing adjustment.
func (s *Store) UpdateAdjustment(ctx context.Context, a payroll.Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE adjustments SET
			agent_id = ?, type = ?, reason = ?, amount = ?,
			line_id = ?, is_completed = ?, completed_at = ?
		WHERE id = ?
	`, a.AgentID, a.Type, a.Reason, a.Amount.String(),
		nullLine(a.LineID), a.IsCompleted, nullTime(a.CompletedAt), a.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrAdjustmentNotFound)
}

// DeleteAdjustment removes an adjustment.
func (s *Store) DeleteAdjustment(ctx context.Context, id payroll.AdjustmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM adjustments WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, payroll.ErrAdjustmentNotFound)
}

// GetAdjustment retrieves an adjustment by ID.
func (s *Store) GetAdjustment(ctx context.Context, id payroll.AdjustmentID) (*payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adjustments, err := s.queryAdjustments(ctx, `
		SELECT id, agent_id, type, reason, amount, line_id, is_completed, completed_at, created_at
		FROM adjustments WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(adjustments) == 0 {
		return nil, payroll.ErrAdjustmentNotFound
	}
	return &adjustments[0], nil
}

// ListAdjustments returns all adjustments, newest first.
func (s *Store) ListAdjustments(ctx context.Context) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAdjustments(ctx, `
		SELECT id, agent_id, type, reason, amount, line_id, is_completed, completed_at, created_at
		FROM adjustments
		ORDER BY created_at DESC
	`)
}

// OpenAdjustmentsByLine returns the not-yet-completed adjustments linked to
// a line, newest first.
func (s *Store) OpenAdjustmentsByLine(ctx context.Context, id payroll.LineID) ([]payroll.Adjustment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAdjustments(ctx, `
		SELECT id, agent_id, type, reason, amount, line_id, is_completed, completed_at, created_at
		FROM adjustments
		WHERE line_id = ? AND is_completed = FALSE
		ORDER BY created_at DESC
	`, id)
}

func (s *Store) queryAdjustments(ctx context.Context, query string, args ...any) ([]payroll.Adjustment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var adjustments []payroll.Adjustment
	for rows.Next() {
		var a payroll.Adjustment
		var reason, lineID, completedAt sql.NullString
		var amount, createdAt string
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Type, &reason, &amount,
			&lineID, &a.IsCompleted, &completedAt, &createdAt); err != nil {
			return nil, err
		}
		a.Reason = reason.String
		a.Amount = commission.MustDecimal(amount)
		if lineID.Valid {
			l := payroll.LineID(lineID.String)
			a.LineID = &l
		}
		a.CompletedAt = timePtr(completedAt)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		adjustments = append(adjustments, a)
	}
	return adjustments, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"adjustments", "payroll_lines", "batches", "sale_entries",
		"overrides", "date_ranges", "plan_rates", "payscales",
		"plans", "manager_relations", "agents",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func decimalPtr(ns sql.NullString) *decimal.Decimal {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	d := commission.MustDecimal(ns.String)
	return &d
}

func nullPayscale(id *commission.PayscaleID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func payscalePtr(ns sql.NullString) *commission.PayscaleID {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	id := commission.PayscaleID(ns.String)
	return &id
}

func nullLine(id *payroll.LineID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}
