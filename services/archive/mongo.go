package archive

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"energy_stock_etl/services/marketdata"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDB database and collection names
const (
	MongoDBName          = "energy_etl"
	ExtractionCollection = "raw_extractions"
)

// Client stores raw extraction payloads in MongoDB Atlas so a run can
// be inspected or reprocessed later. Entirely optional; the pipeline
// treats archive failures as warnings.
type Client struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	uriSet      bool
	lastError   string
}

// SymbolBars is the per-symbol slice of an extraction document
type SymbolBars struct {
	Symbol string           `bson:"symbol"`
	Count  int              `bson:"count"`
	Bars   []marketdata.Bar `bson:"bars"`
}

// ExtractionDoc is one archived extraction payload
type ExtractionDoc struct {
	RunTime   time.Time               `bson:"run_time"`
	TotalBars int                     `bson:"total_bars"`
	Symbols   []SymbolBars            `bson:"symbols"`
	Oil       []marketdata.PricePoint `bson:"oil"`
}

// NewClient initializes the archive client. An empty URI disables the
// archive without error.
func NewClient(mongoURI string) *Client {
	if mongoURI == "" {
		log.Println("MONGODB_URI not set, raw extraction archive disabled")
		return &Client{
			uriSet:    false,
			lastError: "MONGODB_URI environment variable not set",
		}
	}

	client := &Client{uriSet: true}
	if err := client.connect(mongoURI); err != nil {
		log.Printf("Warning: extraction archive unavailable: %v", err)
	}
	return client
}

func (c *Client) connect(mongoURI string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		c.lastError = fmt.Sprintf("Failed to connect: %v", err)
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		c.lastError = fmt.Sprintf("Failed to ping: %v", err)
		client.Disconnect(ctx)
		return err
	}

	c.mu.Lock()
	c.client = client
	c.database = client.Database(MongoDBName)
	c.isConnected = true
	c.lastError = ""
	c.mu.Unlock()

	c.createIndexes()

	log.Println("Extraction archive connected to MongoDB Atlas")
	return nil
}

func (c *Client) createIndexes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := c.database.Collection(ExtractionCollection)
	collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "run_time", Value: -1}},
	})
}

// IsConfigured returns whether the archive is connected
func (c *Client) IsConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

// ConnectionStatus returns detailed status for the admin page
func (c *Client) ConnectionStatus() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := map[string]interface{}{
		"uri_set":   c.uriSet,
		"connected": c.isConnected,
	}
	if c.lastError != "" {
		status["error"] = c.lastError
	}
	return status
}

// Close closes the MongoDB connection
func (c *Client) Close() error {
	if c.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return c.client.Disconnect(ctx)
	}
	return nil
}

// SaveExtraction archives the raw bars of one run
func (c *Client) SaveExtraction(runTime time.Time, barsBySymbol map[string][]marketdata.Bar, oil []marketdata.PricePoint) error {
	if !c.IsConfigured() {
		return fmt.Errorf("archive not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	doc := ExtractionDoc{
		RunTime: runTime,
		Oil:     oil,
	}
	for symbol, bars := range barsBySymbol {
		doc.TotalBars += len(bars)
		doc.Symbols = append(doc.Symbols, SymbolBars{
			Symbol: symbol,
			Count:  len(bars),
			Bars:   bars,
		})
	}

	collection := c.database.Collection(ExtractionCollection)
	if _, err := collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to archive extraction: %w", err)
	}

	log.Printf("Archived raw extraction (%d bars) to MongoDB Atlas", doc.TotalBars)
	return nil
}
