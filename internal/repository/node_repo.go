package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-progression-api/internal/models"
)

// NodeRepository provides read-only access to the node catalog. Nodes are
// authored by the content service; the engine never mutates them.
type NodeRepository interface {
	GetByNodeID(ctx context.Context, nodeID string) (models.Node, error)
	// GetByNodeIDs returns the nodes that resolve; order is not guaranteed
	// and unresolved ids are silently absent. Callers re-order against the
	// requested list.
	GetByNodeIDs(ctx context.Context, nodeIDs []string) ([]models.Node, error)
	ListBySkill(ctx context.Context, skillID string) ([]models.Node, error)
	ListActive(ctx context.Context) ([]models.Node, error)
	GetSkill(ctx context.Context, skillID string) (models.Skill, error)
	ListSkillsByUnit(ctx context.Context, unitID string) ([]models.Skill, error)
	GetUnit(ctx context.Context, unitID string) (models.Unit, error)
	ListUnits(ctx context.Context) ([]models.Unit, error)
	WithTx(tx *gorm.DB) NodeRepository
}

type nodeRepository struct {
	db *gorm.DB
}

// NewNodeRepository constructs a node repository.
func NewNodeRepository(db *gorm.DB) NodeRepository {
	return &nodeRepository{db: db}
}

func (r *nodeRepository) WithTx(tx *gorm.DB) NodeRepository {
	return &nodeRepository{db: tx}
}

func (r *nodeRepository) GetByNodeID(ctx context.Context, nodeID string) (models.Node, error) {
	var node models.Node
	if err := r.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&node).Error; err != nil {
		return models.Node{}, err
	}
	return node, nil
}

func (r *nodeRepository) GetByNodeIDs(ctx context.Context, nodeIDs []string) ([]models.Node, error) {
	if len(nodeIDs) == 0 {
		return []models.Node{}, nil
	}
	var nodes []models.Node
	if err := r.db.WithContext(ctx).Where("node_id IN ?", nodeIDs).Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepository) ListBySkill(ctx context.Context, skillID string) ([]models.Node, error) {
	var nodes []models.Node
	err := r.db.WithContext(ctx).
		Where("skill_id = ?", skillID).
		Order("sequence ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepository) ListActive(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&nodes).Error; err != nil {
		return nil, err
	}
	return nodes, nil
}

func (r *nodeRepository) GetSkill(ctx context.Context, skillID string) (models.Skill, error) {
	var skill models.Skill
	if err := r.db.WithContext(ctx).Where("skill_id = ?", skillID).First(&skill).Error; err != nil {
		return models.Skill{}, err
	}
	return skill, nil
}

func (r *nodeRepository) ListSkillsByUnit(ctx context.Context, unitID string) ([]models.Skill, error) {
	var skills []models.Skill
	err := r.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("sequence ASC").
		Find(&skills).Error
	if err != nil {
		return nil, err
	}
	return skills, nil
}

func (r *nodeRepository) GetUnit(ctx context.Context, unitID string) (models.Unit, error) {
	var unit models.Unit
	if err := r.db.WithContext(ctx).Where("unit_id = ?", unitID).First(&unit).Error; err != nil {
		return models.Unit{}, err
	}
	return unit, nil
}

func (r *nodeRepository) ListUnits(ctx context.Context) ([]models.Unit, error) {
	var units []models.Unit
	if err := r.db.WithContext(ctx).Order("sequence ASC").Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}
