// Package billingtest provides in-memory billing stores for tests.
package billingtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/odyssey-erp/backoffice-billing/internal/billing"
	"github.com/odyssey-erp/backoffice-billing/internal/numbering"
	"github.com/odyssey-erp/backoffice-billing/internal/settings"
)

// Memory implements billing.Store and numbering.Store. It holds no lock of its
// own inside a transaction; UnitOfWork serialises access.
type Memory struct {
	mu        sync.Mutex
	settings  map[int64]settings.Settings
	projects  map[int64]billing.Project
	services  map[int64][]billing.ProjectService
	quotes    map[int64]billing.Quote
	invoices  map[int64]billing.Invoice
	sequences map[string]int64
	numbers   map[string]string
	nextID    int64
}

// New returns an empty store.
func New() *Memory {
	return &Memory{
		settings:  map[int64]settings.Settings{},
		projects:  map[int64]billing.Project{},
		services:  map[int64][]billing.ProjectService{},
		quotes:    map[int64]billing.Quote{},
		invoices:  map[int64]billing.Invoice{},
		sequences: map[string]int64{},
		numbers:   map[string]string{},
	}
}

// SetSettings overwrites a business's settings.
func (m *Memory) SetSettings(s settings.Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.BusinessID] = s
}

// AddProject registers a project. The business gets default settings if it
// has none yet.
func (m *Memory) AddProject(p billing.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.DepositStatus == "" {
		p.DepositStatus = billing.DepositNone
	}
	m.projects[p.ID] = p
	if _, ok := m.settings[p.BusinessID]; !ok {
		m.settings[p.BusinessID] = settings.Defaults(p.BusinessID)
	}
}

// AddServices appends priced services to a project.
func (m *Memory) AddServices(projectID int64, services ...billing.ProjectService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, svc := range services {
		m.nextID++
		svc.ID = m.nextID
		svc.ProjectID = projectID
		m.services[projectID] = append(m.services[projectID], svc)
	}
}

// Invoices returns every invoice of a project ordered by id.
func (m *Memory) Invoices(projectID int64) []billing.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []billing.Invoice
	for _, inv := range m.invoices {
		if inv.ProjectID == projectID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot captures the current state and returns a function restoring it.
func (m *Memory) Snapshot() func() {
	settingsCopy := cloneMap(m.settings)
	projects := cloneMap(m.projects)
	services := cloneMap(m.services)
	quotes := cloneMap(m.quotes)
	invoices := cloneMap(m.invoices)
	sequences := cloneMap(m.sequences)
	numbers := cloneMap(m.numbers)
	nextID := m.nextID
	return func() {
		m.settings = settingsCopy
		m.projects = projects
		m.services = services
		m.quotes = quotes
		m.invoices = invoices
		m.sequences = sequences
		m.numbers = numbers
		m.nextID = nextID
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *Memory) Settings(_ context.Context, businessID int64) (settings.Settings, error) {
	s, ok := m.settings[businessID]
	if !ok {
		return settings.Settings{}, settings.ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetProject(_ context.Context, businessID, projectID int64, _ bool) (billing.Project, error) {
	p, ok := m.projects[projectID]
	if !ok || p.BusinessID != businessID {
		return billing.Project{}, billing.ErrProjectNotFound
	}
	return p, nil
}

func (m *Memory) UpdateProjectDeposit(_ context.Context, p billing.Project) error {
	if _, ok := m.projects[p.ID]; !ok {
		return billing.ErrProjectNotFound
	}
	m.projects[p.ID] = p
	return nil
}

func (m *Memory) ListProjectServices(_ context.Context, _ int64, projectID int64) ([]billing.ProjectService, error) {
	return append([]billing.ProjectService(nil), m.services[projectID]...), nil
}

func (m *Memory) InsertQuote(_ context.Context, q billing.Quote) (billing.Quote, error) {
	m.nextID++
	q.ID = m.nextID
	q.Items = m.assignItemIDs(q.Items)
	m.quotes[q.ID] = q
	return q, nil
}

func (m *Memory) GetQuote(_ context.Context, businessID, quoteID int64, _ bool) (billing.Quote, error) {
	q, ok := m.quotes[quoteID]
	if !ok || q.BusinessID != businessID {
		return billing.Quote{}, billing.ErrQuoteNotFound
	}
	q.Items = append([]billing.Item(nil), q.Items...)
	return q, nil
}

func (m *Memory) UpdateQuote(_ context.Context, q billing.Quote) error {
	current, ok := m.quotes[q.ID]
	if !ok {
		return billing.ErrQuoteNotFound
	}
	q.Items = current.Items
	m.quotes[q.ID] = q
	return nil
}

func (m *Memory) ListQuotes(_ context.Context, businessID, projectID int64) ([]billing.Quote, error) {
	var out []billing.Quote
	for _, q := range m.quotes {
		if q.BusinessID == businessID && q.ProjectID == projectID {
			q.Items = nil
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) InsertInvoice(_ context.Context, inv billing.Invoice) (billing.Invoice, error) {
	if inv.QuoteID != nil {
		for _, existing := range m.invoices {
			if existing.QuoteID != nil && *existing.QuoteID == *inv.QuoteID {
				return billing.Invoice{}, billing.ErrQuoteInvoiced
			}
		}
	}
	m.nextID++
	inv.ID = m.nextID
	inv.Items = m.assignItemIDs(inv.Items)
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *Memory) GetInvoice(_ context.Context, businessID, invoiceID int64, _ bool) (billing.Invoice, error) {
	inv, ok := m.invoices[invoiceID]
	if !ok || inv.BusinessID != businessID {
		return billing.Invoice{}, billing.ErrInvoiceNotFound
	}
	inv.Items = append([]billing.Item(nil), inv.Items...)
	return inv, nil
}

func (m *Memory) UpdateInvoice(_ context.Context, inv billing.Invoice, itemsChanged bool) error {
	current, ok := m.invoices[inv.ID]
	if !ok {
		return billing.ErrInvoiceNotFound
	}
	if itemsChanged {
		inv.Items = m.assignItemIDs(inv.Items)
	} else {
		inv.Items = current.Items
	}
	m.invoices[inv.ID] = inv
	return nil
}

func (m *Memory) ListInvoices(_ context.Context, businessID, projectID int64) ([]billing.Invoice, error) {
	var out []billing.Invoice
	for _, inv := range m.invoices {
		if inv.BusinessID == businessID && inv.ProjectID == projectID {
			inv.Items = nil
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) assignItemIDs(items []billing.Item) []billing.Item {
	out := make([]billing.Item, len(items))
	for i, item := range items {
		m.nextID++
		item.ID = m.nextID
		out[i] = item
	}
	return out
}

// NextSequence implements numbering.Store.
func (m *Memory) NextSequence(_ context.Context, businessID int64, kind numbering.Kind, year int) (int64, error) {
	key := fmt.Sprintf("%d:%s:%d", businessID, kind, year)
	m.sequences[key]++
	return m.sequences[key], nil
}

// Register implements numbering.Store.
func (m *Memory) Register(_ context.Context, businessID int64, kind numbering.Kind, year int, seq int64, number string) error {
	key := fmt.Sprintf("%d:%s:%d:%d", businessID, kind, year, seq)
	if _, ok := m.numbers[key]; ok {
		return numbering.ErrNumberTaken
	}
	m.numbers[key] = number
	return nil
}

var (
	_ billing.Store   = (*Memory)(nil)
	_ numbering.Store = (*Memory)(nil)
)
