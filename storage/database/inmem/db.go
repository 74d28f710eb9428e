package inmemdb

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/fee"
)

type semesterKey struct {
	studentID string
	semester  int
}

// semesterEntry is the ledger entry of one student's semester.
type semesterEntry struct {
	outstanding decimal.Decimal
	settled     bool
}

// DB is an in-memory store for every fee repository.
type DB struct {
	mutex         sync.RWMutex
	profiles      map[string]*fee.Profile
	structures    []fee.Structure
	academicYears map[string]string
	invoices      map[string]*fee.Invoice
	balances      map[string]decimal.Decimal
	entries       map[semesterKey]*semesterEntry
	settlements   map[string]bool // settled invoice ids
}

func NewDB() *DB {
	return &DB{
		profiles:      make(map[string]*fee.Profile),
		academicYears: make(map[string]string),
		invoices:      make(map[string]*fee.Invoice),
		balances:      make(map[string]decimal.Decimal),
		entries:       make(map[semesterKey]*semesterEntry),
		settlements:   make(map[string]bool),
	}
}

// NewRepositories returns all fee repositories backed by db.
func NewRepositories(db *DB) fee.Repositories {
	return fee.Repositories{
		Profiles:      NewProfileRepository(db),
		Structures:    NewStructureRepository(db),
		AcademicYears: NewAcademicYearRepository(db),
		Invoices:      NewInvoiceRepository(db),
		Ledger:        NewLedgerRepository(db),
	}
}

// Seeding (dev & tests)

// AddProfile stores p; its balance also becomes the student's ledger balance.
func (db *DB) AddProfile(p fee.Profile) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	pp := p
	db.profiles[p.StudentID] = &pp
	db.balances[p.StudentID] = p.Balance
}

// AddProfileWithoutBalance stores p without a ledger balance record.
func (db *DB) AddProfileWithoutBalance(p fee.Profile) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	pp := p
	db.profiles[p.StudentID] = &pp
}

func (db *DB) AddStructures(structures ...fee.Structure) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.structures = append(db.structures, structures...)
}

func (db *DB) SetAcademicYear(studentID, label string) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.academicYears[studentID] = label
}

func (db *DB) AddInvoices(invoices ...fee.Invoice) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, inv := range invoices {
		inv := inv
		db.invoices[inv.ID] = &inv
	}
}

// SemesterOutstanding returns the outstanding amount of a student's semester ledger entry.
func (db *DB) SemesterOutstanding(studentID string, semester int) (amount decimal.Decimal, settled bool) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if e, ok := db.entries[semesterKey{studentID, semester}]; ok {
		return e.outstanding, e.settled
	}
	return decimal.Zero, false
}

// InvoiceSettled tells whether the ledger recorded the settlement of invoice id.
func (db *DB) InvoiceSettled(id string) bool {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.settlements[id]
}
