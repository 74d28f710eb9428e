package fee

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core"
)

// Resolution sources
type ScheduleSource string

const (
	SourceProfile          ScheduleSource = "profile"
	SourceStudentStructure ScheduleSource = "student_structure"
	SourceProgramStructure ScheduleSource = "program_structure"
	SourceNone             ScheduleSource = "none"
)

type Resolution struct {
	Semester int             `json:"semester"`
	Amount   decimal.Decimal `json:"amount"`
	Source   ScheduleSource  `json:"source"`
}

func (r Resolution) Resolved() bool {
	return r.Source != SourceNone && r.Amount.IsPositive()
}

// StructureCache holds the program-wide fee structures between reloads.
type StructureCache interface {
	Get(ctx context.Context) (structures []Structure, ok bool, err error)
	Set(ctx context.Context, structures []Structure) error
	Invalidate(ctx context.Context) error
}

// Resolver finds the fee owed for a student's semester.
type Resolver struct {
	repo   StructureRepository
	cache  StructureCache
	logger core.Logger
	mu     sync.Mutex // serialises cache fills
}

// NewResolver returns a Resolver; an in-memory cache is used if cache is nil.
func NewResolver(repo StructureRepository, cache StructureCache, logger core.Logger) *Resolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Resolver{repo: repo, cache: cache, logger: logger}
}

// Resolve returns the fee for semester, trying in order:
//  1. the profile's per-semester fee,
//  2. the student's own fee structure for that semester (first positive entry),
//  3. the sum of the program's fee structure entries for that semester.
//
// The first positive amount wins. A miss is not an error: the returned Resolution is unresolved
// and callers must report it instead of billing zero.
func (r *Resolver) Resolve(ctx context.Context, p Profile, semester int) (Resolution, error) {
	if amt := p.SemesterFee(semester); amt.IsPositive() {
		return Resolution{Semester: semester, Amount: amt, Source: SourceProfile}, nil
	}

	structures, err := r.repo.QueryStudentStructures(ctx, p.StudentID, semester)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("querying fee structures of %s: %v", p.StudentID, err), err)
	}
	for _, s := range structures {
		if s.Semester == semester && s.Amount.IsPositive() {
			return Resolution{Semester: semester, Amount: s.Amount, Source: SourceStudentStructure}, nil
		}
	}

	program, err := r.programStructures(ctx)
	if err != nil {
		return Resolution{}, errors.Wrap(err, "loading program fee structures")
	}
	sum := decimal.Zero
	for _, s := range program {
		if s.ProgramID == p.ProgramID && s.Semester == semester && s.StudentID == "" {
			sum = sum.Add(s.Amount)
		}
	}
	if sum.IsPositive() {
		return Resolution{Semester: semester, Amount: sum, Source: SourceProgramStructure}, nil
	}

	return Resolution{Semester: semester, Amount: decimal.Zero, Source: SourceNone}, nil
}

// Reload drops the cached program structures and loads them again.
func (r *Resolver) Reload(ctx context.Context) error {
	if err := r.cache.Invalidate(ctx); err != nil {
		return errors.Wrap(err, "invalidating fee structure cache")
	}
	_, err := r.programStructures(ctx)
	return err
}

func (r *Resolver) programStructures(ctx context.Context) ([]Structure, error) {
	structures, ok, err := r.cache.Get(ctx)
	if err != nil {
		r.logger.Warn(fmt.Sprintf("reading fee structure cache: %v", err), err)
	}
	if ok {
		return structures, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// another caller may have filled the cache while we waited
	if structures, ok, err = r.cache.Get(ctx); err == nil && ok {
		return structures, nil
	}

	structures, err = r.repo.QueryStructures(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying fee structures")
	}
	if err = r.cache.Set(ctx, structures); err != nil {
		r.logger.Warn(fmt.Sprintf("filling fee structure cache: %v", err), err)
	}
	return structures, nil
}

type memoryCache struct {
	mu         sync.RWMutex
	structures []Structure
	loaded     bool
}

var _ StructureCache = (*memoryCache)(nil)

func NewMemoryCache() StructureCache {
	return &memoryCache{}
}

func (c *memoryCache) Get(context.Context) ([]Structure, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.structures, c.loaded, nil
}

func (c *memoryCache) Set(_ context.Context, structures []Structure) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.structures = structures
	c.loaded = true
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.structures = nil
	c.loaded = false
	return nil
}
