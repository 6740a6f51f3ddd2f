package billing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kentramx/kentramx-sub001/internal/repo"
	"github.com/kentramx/kentramx-sub001/pkg/db/models"
)

// TrialRepository persists trial activations for abuse checks.
type TrialRepository interface {
	WithTx(tx *gorm.DB) TrialRepository
	Record(ctx context.Context, record *models.TrialTracking) error
	CountMatching(ctx context.Context, match TrialMatch) (int64, error)
}

// TrialMatch selects prior trials. Any non-empty field matching is enough.
type TrialMatch struct {
	UserID            uuid.UUID
	IPAddress         string
	DeviceFingerprint string
}

func (m TrialMatch) empty() bool {
	return m.UserID == uuid.Nil && strings.TrimSpace(m.IPAddress) == "" && strings.TrimSpace(m.DeviceFingerprint) == ""
}

type trialRepository struct {
	base repo.Base
}

// NewTrialRepository returns a trial tracking repository bound to the provided database.
func NewTrialRepository(db *gorm.DB) TrialRepository {
	return &trialRepository{base: repo.NewBase(db)}
}

func (r *trialRepository) WithTx(tx *gorm.DB) TrialRepository {
	if tx == nil {
		return r
	}
	return &trialRepository{base: r.base.Tx(tx)}
}

func (r *trialRepository) Record(ctx context.Context, record *models.TrialTracking) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.base.DB(ctx).Create(record).Error
}

func (r *trialRepository) CountMatching(ctx context.Context, match TrialMatch) (int64, error) {
	if match.empty() {
		return 0, nil
	}
	var (
		clauses []string
		args    []any
	)
	if match.UserID != uuid.Nil {
		clauses = append(clauses, "user_id = ?")
		args = append(args, match.UserID)
	}
	if ip := strings.TrimSpace(match.IPAddress); ip != "" {
		clauses = append(clauses, "ip_address = ?")
		args = append(args, ip)
	}
	if fp := strings.TrimSpace(match.DeviceFingerprint); fp != "" {
		clauses = append(clauses, "device_fingerprint = ?")
		args = append(args, fp)
	}
	var count int64
	err := r.base.DB(ctx).
		Model(&models.TrialTracking{}).
		Where("("+strings.Join(clauses, " OR ")+")", args...).
		Count(&count).Error
	return count, err
}
