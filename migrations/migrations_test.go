package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIsOrdered(t *testing.T) {
	list, err := List()
	require.NoError(t, err)
	require.NotEmpty(t, list)
	assert.Equal(t, "0001_billing", list[0].Version)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Version, list[i].Version)
	}
}

func TestSchemaCarriesConstraintsTheRepositoriesMapErrorsFrom(t *testing.T) {
	list, err := List()
	require.NoError(t, err)
	schema := list[0].SQL
	for _, name := range []string{
		"uq_invoices_quote",
		"uq_document_numbers_seq",
		"uq_ledger_entries_source",
		"uq_inventory_movements_key",
		"ck_inventory_stock_levels",
	} {
		assert.Contains(t, schema, name)
	}
	for _, table := range []string{
		"business_settings", "projects", "project_services", "quotes", "quote_items",
		"invoices", "invoice_items", "document_sequences", "document_numbers",
		"ledger_entries", "ledger_lines", "products", "inventory_stock",
		"inventory_movements", "stock_reservations", "audit_logs",
	} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}
