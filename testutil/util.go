// Package testutil holds the helpers shared by the package tests.
package testutil

import (
	"context"
	"net/mail"
	"os"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
	emailsvc "github.com/trezcool/bursar/services/email"
	"github.com/trezcool/bursar/storage/database"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
)

// NewConfig returns the configuration used by tests: in-memory backend, default thresholds.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            false,
		TestMode:         true,
		AppName:          "Bursar",
		DefaultFromEmail: mail.Address{Name: "Bursar", Address: "noreply@bursar.test"},
		BursarEmail:      mail.Address{Name: "Bursar", Address: "bursar@bursar.test"},
		Server: core.ServerConfig{
			ShutdownTimeout: 5 * time.Second,
		},
		Database: core.DatabaseConfig{Backend: core.BackendMemory},
		Campus:   core.CampusConfig{Timeout: 5 * time.Second},
		Fees: core.FeesConfig{
			ProgressionThresholdDays: fee.DefaultProgressionThresholdDays,
			BalanceBatchSize:         8,
		},
	}
}

// NopLogger discards everything.
type NopLogger struct{}

var _ core.Logger = NopLogger{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// NewValidator returns a validator with the core and fee validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := NewTranslator()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate, translator
}

// NewInmemService wires a fee service over a fresh in-memory store and a synchronous console mailer.
func NewInmemService(t *testing.T) (*fee.Service, *inmemdb.DB) {
	t.Helper()
	emailsvc.ResetSentMessages()

	db := inmemdb.NewDB()
	conf := NewConfig()
	validate, _ := NewValidator()
	svc := fee.NewService(fee.ServiceDeps{
		Repos:    inmemdb.NewRepositories(db),
		Mailer:   emailsvc.NewConsoleServiceMock(conf),
		Validate: validate,
		Logger:   NopLogger{},
		Conf:     conf,
	})
	return svc, db
}

// Date returns midnight UTC of the given day.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DatePtr is Date, as a pointer.
func DatePtr(y int, m time.Month, d int) *time.Time {
	t := Date(y, m, d)
	return &t
}

func Amount(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// NewProfile returns a first-semester student enrolled in program BSC.
func NewProfile(studentID string, total, scholarship, balance int64) fee.Profile {
	return fee.Profile{
		StudentID:         studentID,
		Name:              "Student " + studentID,
		Email:             studentID + "@students.test",
		ProgramID:         "BSC",
		TotalProgramFee:   Amount(total),
		ScholarshipAmount: Amount(scholarship),
		CurrentSemester:   1,
		Balance:           Amount(balance),
		AdmissionDate:     Date(2021, time.August, 15),
	}
}

// MockNow pins fee.NowFunc to now for the duration of the test.
func MockNow(t *testing.T, now time.Time) {
	orig := fee.NowFunc
	fee.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { fee.NowFunc = orig })
}

// PrepareDB opens, migrates and empties the TEST postgres database.
// Tests using it are skipped unless TEST_DATABASE_BACKEND=postgres.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("TEST_DATABASE_BACKEND") != core.BackendPostgres {
		t.Skip("postgres backend not configured")
	}
	t.Setenv("ENV", "TEST")
	conf := core.NewConfig()

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	q := `TRUNCATE invoices, invoice_settlements, semester_ledger_entries, student_balances, student_academic_years,
		student_semester_fees, fee_structures, student_fee_profiles`
	if _, err = db.ExecContext(context.Background(), q); err != nil {
		t.Fatalf("PrepareDB(): %v", err)
	}
	return db
}
