package services

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	accessLogDatabase   = "stockalert"
	accessLogCollection = "access_log"
)

// AccessRecord is one request audit entry shipped to remote storage.
type AccessRecord struct {
	IP       string        `bson:"ip"`
	UserID   uint          `bson:"user_id,omitempty"`
	Method   string        `bson:"method"`
	Path     string        `bson:"path"`
	Status   int           `bson:"status"`
	Duration time.Duration `bson:"duration_ns"`
	At       time.Time     `bson:"at"`
}

// AccessLogger ships request audit records to MongoDB off the request path.
// A nil *AccessLogger is valid and records nothing, so the feature costs
// nothing when no MONGODB_URI is configured.
type AccessLogger struct {
	client *mongo.Client
	coll   *mongo.Collection
	log    *zap.Logger

	records   chan AccessRecord
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAccessLogger connects to MongoDB and starts the shipping worker.
// Returns (nil, nil) when uri is empty.
func NewAccessLogger(uri string, log *zap.Logger) (*AccessLogger, error) {
	if uri == "" {
		log.Info("MONGODB_URI not set, remote access logging disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(5).
		SetMaxConnIdleTime(30*time.Second))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	a := &AccessLogger{
		client:  client,
		coll:    client.Database(accessLogDatabase).Collection(accessLogCollection),
		log:     log,
		records: make(chan AccessRecord, 256),
	}
	a.wg.Add(1)
	go a.worker()
	return a, nil
}

func (a *AccessLogger) worker() {
	defer a.wg.Done()
	for record := range a.records {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := a.coll.InsertOne(ctx, record); err != nil {
			a.log.Warn("failed to ship access record", zap.Error(err))
		}
		cancel()
	}
}

// Record queues one audit entry; drops it if the buffer is full.
func (a *AccessLogger) Record(record AccessRecord) {
	if a == nil {
		return
	}
	select {
	case a.records <- record:
	default:
	}
}

// Close drains pending records and disconnects.
func (a *AccessLogger) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() { close(a.records) })
	a.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		a.log.Warn("mongo disconnect failed", zap.Error(err))
	}
}

// Middleware returns a gin middleware that records each request. Safe to
// install on a nil receiver.
func (a *AccessLogger) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			return
		}

		var userID uint
		if v, ok := c.Get("user_id"); ok {
			if id, ok := v.(uint); ok {
				userID = id
			}
		}
		a.Record(AccessRecord{
			IP:       c.ClientIP(),
			UserID:   userID,
			Method:   c.Request.Method,
			Path:     path,
			Status:   c.Writer.Status(),
			Duration: time.Since(start),
			At:       start.UTC(),
		})
	}
}
