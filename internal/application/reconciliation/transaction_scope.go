package reconciliation

import (
	"context"

	"github.com/musicschool/ledger/internal/domain/invoicing"
	"github.com/musicschool/ledger/internal/domain/ledger"
)

// TransactionScope provides transactional access to the ledger repositories.
// Every repository handed to fn shares one database transaction, which is
// committed if fn returns nil and rolled back otherwise.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a transaction.
//
// Aggregate boundaries:
//   - EntryRepo: LedgerEntry with its applications. Applications are never
//     saved on their own.
//   - InvoiceRepo: Invoice with lines and payment records.
//   - TransactionRepo: the append-only transaction ledger.
//   - Numbers: invoice number counters, locked for the rest of the transaction.
type TransactionalRepositories interface {
	EntryRepo() ledger.LedgerEntryRepository
	InvoiceRepo() invoicing.InvoiceRepository
	TransactionRepo() ledger.TransactionRepository
	Numbers() invoicing.NumberSequence
}
