package inmemdb

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/trezcool/bursar/core/fee"
)

type profileRepository struct {
	db *DB
}

var _ fee.ProfileRepository = (*profileRepository)(nil)

func NewProfileRepository(db *DB) fee.ProfileRepository {
	return &profileRepository{db: db}
}

func (repo *profileRepository) QueryProfiles(context.Context) ([]fee.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	profiles := make([]fee.Profile, 0, len(repo.db.profiles))
	for _, p := range repo.db.profiles {
		profiles = append(profiles, *p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].StudentID < profiles[j].StudentID })
	return profiles, nil
}

func (repo *profileRepository) GetProfile(_ context.Context, studentID string) (fee.Profile, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if p, ok := repo.db.profiles[studentID]; ok {
		return *p, nil
	}
	return fee.Profile{}, fee.ErrStudentNotFound
}

func (repo *profileRepository) update(studentID string, fn func(p *fee.Profile)) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p, ok := repo.db.profiles[studentID]
	if !ok {
		return fee.ErrStudentNotFound
	}
	fn(p)
	return nil
}

func (repo *profileRepository) SetCurrentSemester(_ context.Context, studentID string, semester int) error {
	return repo.update(studentID, func(p *fee.Profile) {
		if semester > p.CurrentSemester { // never goes back
			p.CurrentSemester = semester
		}
	})
}

func (repo *profileRepository) MarkFirstSemesterBilled(_ context.Context, studentID, invoiceID string) error {
	return repo.update(studentID, func(p *fee.Profile) {
		if p.FirstSemesterInvoiceID == "" {
			p.FirstSemesterInvoiceID = invoiceID
		}
	})
}

func (repo *profileRepository) UpdateDue(_ context.Context, studentID string, due decimal.Decimal) error {
	return repo.update(studentID, func(p *fee.Profile) { p.Due = due })
}

type structureRepository struct {
	db *DB
}

var _ fee.StructureRepository = (*structureRepository)(nil)

func NewStructureRepository(db *DB) fee.StructureRepository {
	return &structureRepository{db: db}
}

func (repo *structureRepository) QueryStructures(context.Context) ([]fee.Structure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	structures := make([]fee.Structure, 0, len(repo.db.structures))
	for _, s := range repo.db.structures {
		if s.StudentID == "" {
			structures = append(structures, s)
		}
	}
	return structures, nil
}

func (repo *structureRepository) QueryStudentStructures(_ context.Context, studentID string, semester int) ([]fee.Structure, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var structures []fee.Structure
	for _, s := range repo.db.structures {
		if s.StudentID == studentID && s.Semester == semester {
			structures = append(structures, s)
		}
	}
	return structures, nil
}

type academicYearRepository struct {
	db *DB
}

var _ fee.AcademicYearRepository = (*academicYearRepository)(nil)

func NewAcademicYearRepository(db *DB) fee.AcademicYearRepository {
	return &academicYearRepository{db: db}
}

func (repo *academicYearRepository) GetAcademicYear(_ context.Context, studentID string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if label, ok := repo.db.academicYears[studentID]; ok {
		return label, nil
	}
	return "", fee.ErrAcademicYearNotFound
}
