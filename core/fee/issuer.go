package fee

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// invoiceIssuer allocates invoice ids and creates invoices, one at a time.
type invoiceIssuer struct {
	mu   sync.Mutex
	repo InvoiceRepository
}

func (is *invoiceIssuer) issue(ctx context.Context, inv Invoice) (Invoice, error) {
	is.mu.Lock()
	defer is.mu.Unlock()

	ids, err := is.repo.QueryInvoiceIDs(ctx)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "querying invoice ids")
	}
	inv.ID = NextInvoiceID(ids)

	now := NowFunc().UTC()
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.Amount = inv.Total()

	created, err := is.repo.CreateInvoice(ctx, inv)
	if err != nil {
		return Invoice{}, errors.Wrap(err, "creating invoice")
	}
	return created, nil
}

// keyedMutex serialises work per key (student).
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (km *keyedMutex) lock(key string) (unlock func()) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyedLock)
	}
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
