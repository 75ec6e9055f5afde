package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pressroom/internal/models"
)

var ErrWorkspaceNotFound = errors.New("workspace not found")

type WorkspaceRepository struct {
	db *gorm.DB
}

func NewWorkspaceRepository(db *gorm.DB) *WorkspaceRepository {
	return &WorkspaceRepository{db: db}
}

func (r *WorkspaceRepository) Create(ws *models.Workspace) error {
	if ws.ID == "" {
		ws.ID = uuid.New().String()
	}
	if ws.Slug == "" {
		ws.Slug = slugify(ws.Name)
	}
	return r.db.Create(ws).Error
}

func (r *WorkspaceRepository) FindByID(id string) (*models.Workspace, error) {
	var ws models.Workspace
	err := r.db.Where("id = ?", id).First(&ws).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

func (r *WorkspaceRepository) FindAll(limit, page int) ([]models.Workspace, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}

	var total int64
	if err := r.db.Model(&models.Workspace{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var workspaces []models.Workspace
	err := r.db.Order("created_at ASC").
		Limit(limit).Offset((page - 1) * limit).
		Find(&workspaces).Error
	return workspaces, total, err
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Join(strings.Fields(s), "-")
	return s
}
