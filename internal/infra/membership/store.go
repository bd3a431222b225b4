package membership

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/get-hunter/hero365-app-sub007/internal/config"
	"github.com/get-hunter/hero365-app-sub007/internal/domain"
)

// BusinessMembershipModel mirrors the business_memberships table.
type BusinessMembershipModel struct {
	ID          string    `gorm:"type:uuid;primaryKey"`
	UserID      string    `gorm:"type:uuid;index;not null"`
	BusinessID  string    `gorm:"type:uuid;index;not null"`
	Role        string    `gorm:"not null"`
	Permissions []string  `gorm:"type:jsonb;serializer:json;not null"`
	RoleLevel   int       `gorm:"not null"`
	IsActive    bool      `gorm:"index;not null"`
	JoinedAt    time.Time `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (BusinessMembershipModel) TableName() string {
	return "business_memberships"
}

// Store reads membership snapshots from postgres. The pipeline treats it as
// the single source of truth; nothing here is cached across requests.
type Store struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewStoreWithDB(gdb, cfg.MembershipTimeout), nil
}

func NewStoreWithDB(db *gorm.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Store{db: db, timeout: timeout}
}

// ActiveMemberships returns the caller's active memberships in join order.
// Store failures map to ErrUpstreamUnavailable so the pipeline degrades to
// "unauthenticated"/"no context" instead of a 5xx.
func (s *Store) ActiveMemberships(ctx context.Context, userID string) (domain.MembershipSnapshot, error) {
	if userID == "" {
		return nil, domain.ErrMembershipNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []BusinessMembershipModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("joined_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, domain.ErrUpstreamUnavailable
	}

	snapshot := make(domain.MembershipSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshot = append(snapshot, domain.BusinessMembership{
			BusinessID:  row.BusinessID,
			Role:        row.Role,
			Permissions: row.Permissions,
			RoleLevel:   row.RoleLevel,
			Active:      row.IsActive,
		})
	}
	return snapshot, nil
}

var _ domain.MembershipStore = (*Store)(nil)
