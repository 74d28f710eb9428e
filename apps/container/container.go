// Package container builds the dependencies shared by the api and admin binaries.
package container

import (
	"context"
	"fmt"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fee"
	cachesvc "github.com/trezcool/bursar/services/cache"
	campussvc "github.com/trezcool/bursar/services/campus"
	emailsvc "github.com/trezcool/bursar/services/email"
	logsvc "github.com/trezcool/bursar/services/logger"
	"github.com/trezcool/bursar/storage/database"
	inmemdb "github.com/trezcool/bursar/storage/database/inmem"
	sqlxrepos "github.com/trezcool/bursar/storage/database/sqlx"
)

// Closer releases whatever a provider opened.
type Closer func() error

func nopCloser() error { return nil }

func NewLogger(conf *core.Config, name string) (*logsvc.RollbarLogger, error) {
	zl, err := logsvc.NewZapLogger(conf)
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	logger := logsvc.NewRollbarLogger(zl.Named(name), conf)
	logger.Enable(!conf.Debug)
	return logger, nil
}

// NewDB creates, opens and migrates the postgres database.
func NewDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewRepositories returns the fee repositories of the configured backend.
// db is nil unless the backend is postgres.
func NewRepositories(conf *core.Config, logger core.Logger) (repos fee.Repositories, db *sqlx.DB, closer Closer, err error) {
	switch conf.Database.Backend {
	case core.BackendPostgres:
		if db, err = NewDB(conf); err != nil {
			return repos, nil, nil, errors.Wrap(err, "setting up database")
		}
		return sqlxrepos.NewRepositories(db), db, db.Close, nil
	case core.BackendCampus:
		client := campussvc.NewClient(conf.Campus, logger)
		return campussvc.NewRepositories(client), nil, nopCloser, nil
	case core.BackendMemory:
		logger.Warn("using the in-memory backend: nothing will be persisted")
		return inmemdb.NewRepositories(inmemdb.NewDB()), nil, nopCloser, nil
	}
	return repos, nil, nil, fmt.Errorf("unknown database backend %q", conf.Database.Backend)
}

// NewStructureCache returns the redis cache if one is configured, nil otherwise (in-memory cache).
func NewStructureCache(conf *core.Config, logger core.Logger) (fee.StructureCache, Closer) {
	if conf.Redis.Addr == "" {
		return nil, nopCloser
	}
	client := cachesvc.NewRedisClient(conf.Redis)
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn(fmt.Sprintf("redis unreachable at %s, structures cached in memory: %v", conf.Redis.Addr, err), err)
		_ = client.Close()
		return nil, nopCloser
	}
	return cachesvc.NewRedisStructureCache(client, conf.Redis.TTL), client.Close
}

func NewEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func NewValidator(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	fee.InitValidators(validate, translator)
	return validate
}

// FeeService is the fee service along with what it was built from.
type FeeService struct {
	*fee.Service
	DB         *sqlx.DB // nil unless the backend is postgres
	Validate   *validator.Validate
	Translator ut.Translator
	closers    []Closer
}

// Close releases the database and cache connections.
func (fs *FeeService) Close() error {
	var firstErr error
	for _, closer := range fs.closers {
		if err := closer(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewFeeService(conf *core.Config, logger core.Logger) (*FeeService, error) {
	repos, db, closeDB, err := NewRepositories(conf, logger)
	if err != nil {
		return nil, err
	}
	cache, closeCache := NewStructureCache(conf, logger)

	translator := NewTranslator()
	validate := NewValidator(translator)

	svc := fee.NewService(fee.ServiceDeps{
		Repos:    repos,
		Cache:    cache,
		Mailer:   NewEmailService(conf, logger),
		Validate: validate,
		Logger:   logger,
		Conf:     conf,
	})
	return &FeeService{
		Service:    svc,
		DB:         db,
		Validate:   validate,
		Translator: translator,
		closers:    []Closer{closeCache, closeDB},
	}, nil
}
