package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/parth1006/workflow-engine/engine"
)

// Payloads are stored as raw JSON bytes rather than nested BSON so
// both backends round-trip run state identically (BSON would widen
// JSON numbers to int32/int64 on the way back out).
type graphDocument struct {
	GraphID    string    `bson:"graph_id"`
	Name       string    `bson:"name"`
	Definition []byte    `bson:"definition"`
	CreatedAt  time.Time `bson:"created_at"`
}

type runDocument struct {
	RunID       string     `bson:"run_id"`
	GraphID     string     `bson:"graph_id"`
	Status      string     `bson:"status"`
	CurrentNode string     `bson:"current_node"`
	State       []byte     `bson:"state"`
	Logs        []byte     `bson:"logs"`
	Iterations  int        `bson:"iterations"`
	MaxIter     int        `bson:"max_iterations"`
	Error       string     `bson:"error"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client *mongo.Client
	graphs *mongo.Collection
	runs   *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects to MongoDB and ensures the collection
// indexes exist.
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		graphs: db.Collection("graphs"),
		runs:   db.Collection("runs"),
		logger: logger.With(zap.String("component", "storage.mongo")),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("mongodb store ready", zap.String("database", database))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.graphs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "graph_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create graph indexes: %w", err)
	}

	_, err = s.runs.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "run_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "graph_id", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create run indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) SaveGraph(ctx context.Context, graph *engine.GraphDefinition) error {
	payload, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to encode graph: %w", err)
	}

	_, err = s.graphs.InsertOne(ctx, graphDocument{
		GraphID:    graph.ID,
		Name:       graph.Name,
		Definition: payload,
		CreatedAt:  graph.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save graph %s: %w", graph.ID, err)
	}
	return nil
}

func (s *MongoStore) GetGraph(ctx context.Context, graphID string) (*engine.GraphDefinition, error) {
	var doc graphDocument
	err := s.graphs.FindOne(ctx, bson.M{"graph_id": graphID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load graph %s: %w", graphID, err)
	}
	return decodeGraph(doc.Definition)
}

func (s *MongoStore) ListGraphs(ctx context.Context) ([]*engine.GraphDefinition, error) {
	cursor, err := s.graphs.Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list graphs: %w", err)
	}
	defer cursor.Close(ctx)

	var graphs []*engine.GraphDefinition
	for cursor.Next(ctx) {
		var doc graphDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode graph document: %w", err)
		}
		g, err := decodeGraph(doc.Definition)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, cursor.Err()
}

func (s *MongoStore) DeleteGraph(ctx context.Context, graphID string) error {
	res, err := s.graphs.DeleteOne(ctx, bson.M{"graph_id": graphID})
	if err != nil {
		return fmt.Errorf("failed to delete graph %s: %w", graphID, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) SaveRun(ctx context.Context, run *engine.Run) error {
	doc, err := encodeRunDocument(run)
	if err != nil {
		return err
	}
	if _, err := s.runs.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *MongoStore) UpdateRun(ctx context.Context, run *engine.Run) error {
	doc, err := encodeRunDocument(run)
	if err != nil {
		return err
	}
	res, err := s.runs.ReplaceOne(ctx, bson.M{"run_id": run.RunID}, doc)
	if err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	var doc runDocument
	err := s.runs.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return decodeRunDocument(&doc)
}

func (s *MongoStore) ListRuns(ctx context.Context, graphID string, limit int) ([]*engine.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	cursor, err := s.runs.Find(ctx, bson.M{"graph_id": graphID},
		options.Find().
			SetSort(bson.D{{Key: "started_at", Value: -1}}).
			SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("failed to list runs for graph %s: %w", graphID, err)
	}
	defer cursor.Close(ctx)

	var runs []*engine.Run
	for cursor.Next(ctx) {
		var doc runDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode run document: %w", err)
		}
		run, err := decodeRunDocument(&doc)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, cursor.Err()
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func encodeRunDocument(run *engine.Run) (*runDocument, error) {
	state, err := json.Marshal(run.State)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run state: %w", err)
	}
	logs, err := json.Marshal(run.Logs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run logs: %w", err)
	}

	return &runDocument{
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

func decodeRunDocument(doc *runDocument) (*engine.Run, error) {
	run := &engine.Run{
		RunID:         doc.RunID,
		GraphID:       doc.GraphID,
		Status:        engine.RunStatus(doc.Status),
		CurrentNode:   doc.CurrentNode,
		Iterations:    doc.Iterations,
		MaxIterations: doc.MaxIter,
		Error:         doc.Error,
		StartedAt:     doc.StartedAt,
		CompletedAt:   doc.CompletedAt,
	}
	if len(doc.State) > 0 {
		if err := json.Unmarshal(doc.State, &run.State); err != nil {
			return nil, fmt.Errorf("failed to decode run state: %w", err)
		}
	}
	if len(doc.Logs) > 0 {
		if err := json.Unmarshal(doc.Logs, &run.Logs); err != nil {
			return nil, fmt.Errorf("failed to decode run logs: %w", err)
		}
	}
	return run, nil
}
