package sheets

import (
	"context"

	"paghetta/internal/core"
)

// Ports for outbound adapters.
type (
	// MirrorWriter appends a ledger record to the family spreadsheet and
	// returns a reference to the written row.
	MirrorWriter interface {
		Append(ctx context.Context, tx core.Transaction, childName string) (rowRef string, err error)
	}
)
