package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/parth1006/workflow-engine/engine"
)

// graphRecord is the relational row for a graph definition. The full
// definition is stored as a JSON document; name and timestamps are
// duplicated into columns for listing without unmarshalling.
type graphRecord struct {
	GraphID    string    `gorm:"column:graph_id;primaryKey;size:64"`
	Name       string    `gorm:"column:name;size:255;index"`
	Definition []byte    `gorm:"column:definition;type:json"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (graphRecord) TableName() string { return "graphs" }

// runRecord is the relational row for a run. Status and graph_id are
// indexed query columns; state and logs live in JSON documents.
type runRecord struct {
	RunID       string     `gorm:"column:run_id;primaryKey;size:64"`
	GraphID     string     `gorm:"column:graph_id;size:64;index"`
	Status      string     `gorm:"column:status;size:32;index"`
	CurrentNode string     `gorm:"column:current_node;size:255"`
	State       []byte     `gorm:"column:state;type:json"`
	Logs        []byte     `gorm:"column:logs;type:json"`
	Iterations  int        `gorm:"column:iterations"`
	MaxIter     int        `gorm:"column:max_iterations"`
	Error       string     `gorm:"column:error;type:text"`
	StartedAt   time.Time  `gorm:"column:started_at;index"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
}

func (runRecord) TableName() string { return "runs" }

// GormStore implements Store on a relational database through GORM.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Dialector builds the GORM dialector for a driver name and DSN.
// Supported drivers: sqlite, postgres, mysql.
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// NewGormStore opens the database and migrates the graphs and runs
// tables.
func NewGormStore(dialector gorm.Dialector, logger *zap.Logger) (*GormStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&graphRecord{}, &runRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	logger.Info("database store ready", zap.String("dialect", dialector.Name()))
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "storage.gorm")),
	}, nil
}

func (s *GormStore) SaveGraph(ctx context.Context, graph *engine.GraphDefinition) error {
	payload, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	rec := graphRecord{
		GraphID:    graph.ID,
		Name:       graph.Name,
		Definition: payload,
		CreatedAt:  graph.CreatedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save graph %s: %w", graph.ID, err)
	}
	s.logger.Debug("graph saved", zap.String("graph_id", graph.ID))
	return nil
}

func (s *GormStore) GetGraph(ctx context.Context, graphID string) (*engine.GraphDefinition, error) {
	var rec graphRecord
	err := s.db.WithContext(ctx).First(&rec, "graph_id = ?", graphID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
	}
	return decodeGraph(rec.Definition)
}

func (s *GormStore) ListGraphs(ctx context.Context) ([]*engine.GraphDefinition, error) {
	var recs []graphRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}

	graphs := make([]*engine.GraphDefinition, 0, len(recs))
	for _, rec := range recs {
		g, err := decodeGraph(rec.Definition)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

func (s *GormStore) DeleteGraph(ctx context.Context, graphID string) error {
	res := s.db.WithContext(ctx).Delete(&graphRecord{}, "graph_id = ?", graphID)
	if res.Error != nil {
		return fmt.Errorf("failed to delete graph %s: %w", graphID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SaveRun(ctx context.Context, run *engine.Run) error {
	rec, err := encodeRun(run)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *GormStore) UpdateRun(ctx context.Context, run *engine.Run) error {
	rec, err := encodeRun(run)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&runRecord{}).
		Where("run_id = ?", run.RunID).
		Updates(map[string]any{
			"status":       rec.Status,
			"current_node": rec.CurrentNode,
			"state":        rec.State,
			"logs":         rec.Logs,
			"iterations":   rec.Iterations,
			"error":        rec.Error,
			"completed_at": rec.CompletedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	var rec runRecord
	err := s.db.WithContext(ctx).First(&rec, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return decodeRun(&rec)
}

func (s *GormStore) ListRuns(ctx context.Context, graphID string, limit int) ([]*engine.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var recs []runRecord
	err := s.db.WithContext(ctx).
		Where("graph_id = ?", graphID).
		Order("started_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for graph %s: %w", graphID, err)
	}

	runs := make([]*engine.Run, 0, len(recs))
	for i := range recs {
		run, err := decodeRun(&recs[i])
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

// DB exposes the underlying gorm handle for pool tuning and health
// monitoring.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---------------------------------------------------------------------------
// Row <-> domain mapping
// ---------------------------------------------------------------------------

func decodeGraph(payload []byte) (*engine.GraphDefinition, error) {
	var g engine.GraphDefinition
	if err := json.Unmarshal(payload, &g); err != nil {
		return nil, fmt.Errorf("failed to decode graph document: %w", err)
	}
	return &g, nil
}

func encodeRun(run *engine.Run) (*runRecord, error) {
	state, err := json.Marshal(run.State)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run state: %w", err)
	}
	logs, err := json.Marshal(run.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run logs: %w", err)
	}

	return &runRecord{
		RunID:       run.RunID,
		GraphID:     run.GraphID,
		Status:      string(run.Status),
		CurrentNode: run.CurrentNode,
		State:       state,
		Logs:        logs,
		Iterations:  run.Iterations,
		MaxIter:     run.MaxIterations,
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}, nil
}

func decodeRun(rec *runRecord) (*engine.Run, error) {
	run := &engine.Run{
		RunID:         rec.RunID,
		GraphID:       rec.GraphID,
		Status:        engine.RunStatus(rec.Status),
		CurrentNode:   rec.CurrentNode,
		Iterations:    rec.Iterations,
		MaxIterations: rec.MaxIter,
		Error:         rec.Error,
		StartedAt:     rec.StartedAt,
		CompletedAt:   rec.CompletedAt,
	}
	if len(rec.State) > 0 {
		if err := json.Unmarshal(rec.State, &run.State); err != nil {
			return nil, fmt.Errorf("failed to decode run state: %w", err)
		}
	}
	if len(rec.Logs) > 0 {
		if err := json.Unmarshal(rec.Logs, &run.Logs); err != nil {
			return nil, fmt.Errorf("failed to decode run logs: %w", err)
		}
	}
	return run, nil
}
