package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/fanout/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresMemberRepository implements MemberRepository for PostgreSQL
type PostgresMemberRepository struct {
	db *gorm.DB
}

// NewPostgresMemberRepository creates a new PostgresMemberRepository
func NewPostgresMemberRepository(db *gorm.DB) *PostgresMemberRepository {
	return &PostgresMemberRepository{db: db}
}

// Get retrieves a member by ID from PostgreSQL
func (r *PostgresMemberRepository) Get(ctx context.Context, id string) (*models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).First(&member, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &member, nil
}

// GetMany retrieves the members with the given ids
func (r *PostgresMemberRepository) GetMany(ctx context.Context, ids []string) (map[string]*models.Member, error) {
	out := make(map[string]*models.Member, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var members []models.Member
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}
	for i := range members {
		out[members[i].ID] = &members[i]
	}
	return out, nil
}

// Save inserts or updates a member profile
func (r *PostgresMemberRepository) Save(ctx context.Context, member *models.Member) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(member).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}
