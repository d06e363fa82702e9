package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/araddon/dateparse"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/finagent/internal/observability"
	"github.com/harun/finagent/internal/tracing"
	"github.com/harun/finagent/pkg/categorize"
	"github.com/harun/finagent/pkg/index"
	"github.com/harun/finagent/pkg/transactions"
)

// DefaultDateLayout is the created_at layout of exported bank statements
const DefaultDateLayout = "01/02/2006"

// Classifier assigns categories to a batch of rows
type Classifier interface {
	ClassifyBatch(ctx context.Context, rows []categorize.Row) []categorize.Classification
}

// TransactionWriter persists parsed transactions
type TransactionWriter interface {
	CreateBatch(ctx context.Context, txs []*transactions.Transaction) error
}

// DocumentIndexer makes transactions searchable
type DocumentIndexer interface {
	Add(ctx context.Context, docs []index.Document) error
}

// SkippedRow records why a CSV line was not stored
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// Report summarises one ingest batch
type Report struct {
	Batch        string        `json:"batch"`
	Rows         int           `json:"rows"`
	Stored       int           `json:"stored"`
	Skipped      int           `json:"skipped"`
	Unclassified int           `json:"unclassified"`
	SkippedRows  []SkippedRow  `json:"skipped_rows,omitempty"`
	IDs          []string      `json:"ids,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Config wires a Pipeline
type Config struct {
	Store      TransactionWriter
	Index      DocumentIndexer
	Classifier Classifier
	DateLayout string
	Location   *time.Location
	Logger     *zerolog.Logger
}

// Pipeline turns CSV statements into stored, classified and indexed
// transactions
type Pipeline struct {
	store      TransactionWriter
	index      DocumentIndexer
	classifier Classifier
	dateLayout string
	location   *time.Location
	logger     zerolog.Logger
}

// NewPipeline creates a pipeline
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("transaction store is required")
	}
	if cfg.Index == nil {
		return nil, errors.New("index is required")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("classifier is required")
	}

	layout := cfg.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Pipeline{
		store:      cfg.Store,
		index:      cfg.Index,
		classifier: cfg.Classifier,
		dateLayout: layout,
		location:   loc,
		logger:     logger.With().Str("component", "ingest").Logger(),
	}, nil
}

// IngestFile ingests the CSV file at path
func (p *Pipeline) IngestFile(ctx context.Context, path string) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return p.Ingest(ctx, f)
}

// Ingest reads CSV rows from r, classifies each one, stores the batch and
// indexes it. Rows with an unparsable amount or date are skipped; rows that
// fail classification are stored with empty categories.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader) (Report, error) {
	start := time.Now()
	batchID, _ := gonanoid.New()
	ctx = tracing.WithBatchID(ctx, batchID)
	ctx, span := tracing.StartSpan(ctx, "ingest.batch", attribute.String("batch_id", batchID))
	var ingestErr error
	report := Report{Batch: batchID}
	defer func() {
		observability.RecordIngestAudit(ctx, batchID, report.Stored, report.Skipped, ingestErr)
		tracing.EndSpan(span, ingestErr)
	}()

	logger := tracing.LoggerFromContext(ctx, p.logger)

	raw, err := ReadRows(r)
	if err != nil {
		ingestErr = fmt.Errorf("failed to read csv: %w", err)
		return report, ingestErr
	}
	report.Rows = len(raw)

	txs := make([]*transactions.Transaction, 0, len(raw))
	rows := make([]categorize.Row, 0, len(raw))
	for _, row := range raw {
		tx, err := p.parseRow(row)
		if err != nil {
			report.Skipped++
			report.SkippedRows = append(report.SkippedRows, SkippedRow{Line: row.Line, Reason: err.Error()})
			logger.Warn().Int("line", row.Line).Err(err).Msg("Skipping row")
			continue
		}
		txs = append(txs, tx)
		rows = append(rows, categorize.Row{Name: tx.Name, CreatedAt: tx.CreatedAt, Note: tx.TransferNote})
	}

	if len(txs) == 0 {
		observability.RecordIngestRows("skipped", report.Skipped)
		report.Duration = time.Since(start)
		return report, nil
	}

	classes := p.classifier.ClassifyBatch(ctx, rows)
	if err := ctx.Err(); err != nil {
		ingestErr = fmt.Errorf("ingest interrupted: %w", err)
		return report, ingestErr
	}

	docs := make([]index.Document, 0, len(txs))
	for i, tx := range txs {
		if i < len(classes) {
			tx.Category = classes[i].Category
			tx.Subcategory = classes[i].Subcategory
		}
		if !tx.Classified() {
			report.Unclassified++
		}
		if tx.TransactionType == "" {
			tx.TransactionType = inferType(tx)
		}
		docs = append(docs, index.Document{ID: tx.ID, Content: DocumentText(tx)})
	}

	if err := p.store.CreateBatch(ctx, txs); err != nil {
		ingestErr = fmt.Errorf("failed to store transactions: %w", err)
		return report, ingestErr
	}
	if err := p.index.Add(ctx, docs); err != nil {
		ingestErr = fmt.Errorf("failed to index transactions: %w", err)
		return report, ingestErr
	}

	report.Stored = len(txs)
	for _, tx := range txs {
		report.IDs = append(report.IDs, tx.ID)
	}
	report.Duration = time.Since(start)

	observability.RecordIngestRows("stored", report.Stored)
	observability.RecordIngestRows("skipped", report.Skipped)
	observability.RecordIngestRows("unclassified", report.Unclassified)

	logger.Info().
		Int("rows", report.Rows).
		Int("stored", report.Stored).
		Int("skipped", report.Skipped).
		Int("unclassified", report.Unclassified).
		Dur("duration", report.Duration).
		Msg("Ingest batch completed")

	return report, nil
}

func (p *Pipeline) parseRow(row RawRow) (*transactions.Transaction, error) {
	if row.Name == "" {
		return nil, errors.New("missing name")
	}

	amount, currency, err := ExtractAmountCurrency(row.Amount)
	if err != nil {
		return nil, err
	}

	createdAt, err := p.parseDate(row.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &transactions.Transaction{
		ID:              transactions.NewID(),
		Name:            row.Name,
		Amount:          amount,
		Currency:        currency,
		CreatedAt:       createdAt,
		TransferNote:    row.TransferNote,
		TransactionType: row.TransactionType,
	}, nil
}

// parseDate tries the configured layout first and falls back to format
// detection for anything else.
func (p *Pipeline) parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing created_at")
	}
	if t, err := time.ParseInLocation(p.dateLayout, s, p.location); err == nil {
		return t, nil
	}
	t, err := dateparse.ParseIn(s, p.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q: %w", s, err)
	}
	return t, nil
}

func inferType(tx *transactions.Transaction) string {
	if tx.Category == "salary" {
		return transactions.TypeIncome
	}
	return transactions.TypeExpense
}

// DocumentText is the text embedded for a transaction
func DocumentText(tx *transactions.Transaction) string {
	return fmt.Sprintf("%s. Note: %s. Subcategory: %s. Category: %s",
		tx.Name, tx.TransferNote, tx.Subcategory, tx.Category)
}
