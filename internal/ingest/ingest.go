package ingest

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cmorgan83/trade-history-service/internal/metrics"
	"github.com/cmorgan83/trade-history-service/internal/models"
)

// Store is the persistence surface the ingestion service needs
type Store interface {
	FileChecksum(filePath string) (string, bool, error)
	IngestStatement(stmt *models.NormalizedStatement) (int, error)
	RebuildDerived(transferWindowDays int) (*models.RebuildReport, error)
	StartJobRun(jobName string) (int64, error)
	FinishJobRun(id int64, status, detailsJSON string) error
}

// Service accepts normalized statement batches from the extraction
// pipeline, writes each file with replace-by-file semantics, and then
// rebuilds all derived state
type Service struct {
	store              Store
	transferWindowDays int
}

// NewService creates an ingestion service
func NewService(store Store, transferWindowDays int) *Service {
	return &Service{store: store, transferWindowDays: transferWindowDays}
}

// Result combines the ingest report with the rebuild that followed it
type Result struct {
	Statements models.IngestReport   `json:"statements"`
	Positions  *models.RebuildReport `json:"positions"`
}

// IngestBatches processes a set of statement files and triggers one
// rebuild at the end. Files whose checksum is unchanged are skipped
// unless the batch is marked force. A file that fails conversion is
// recorded as failed and does not abort the run.
func (s *Service) IngestBatches(batches []models.StatementBatch) (*Result, error) {
	jobID, err := s.store.StartJobRun("ingest_statements")
	if err != nil {
		return nil, err
	}

	result := &Result{}
	result.Statements.TotalFiles = len(batches)

	for i := range batches {
		batch := &batches[i]

		if !batch.Force {
			stored, found, err := s.store.FileChecksum(batch.FilePath)
			if err != nil {
				s.failJob(jobID, err)
				return nil, err
			}
			if found && stored == batch.Checksum {
				result.Statements.SkippedFiles++
				metrics.IngestFilesTotal.WithLabelValues("skipped").Inc()
				continue
			}
		}

		stmt, err := convertBatch(batch)
		if err != nil {
			log.Printf("Failed to convert statement %s: %v", batch.FilePath, err)
			result.Statements.FailedFiles++
			metrics.IngestFilesTotal.WithLabelValues("failed").Inc()
			if _, err := s.store.IngestStatement(failedStatement(batch, err)); err != nil {
				s.failJob(jobID, err)
				return nil, err
			}
			continue
		}

		inserted, err := s.store.IngestStatement(stmt)
		if err != nil {
			s.failJob(jobID, err)
			return nil, fmt.Errorf("failed to ingest statement %s: %w", batch.FilePath, err)
		}
		result.Statements.ParsedFiles++
		result.Statements.EventsInserted += inserted
		result.Statements.IssuesLogged += len(batch.Issues)
		metrics.IngestFilesTotal.WithLabelValues("parsed").Inc()
		metrics.IngestEventsInserted.Add(float64(inserted))
	}

	report, err := s.store.RebuildDerived(s.transferWindowDays)
	if err != nil {
		s.failJob(jobID, err)
		return nil, err
	}
	result.Positions = report

	details, _ := json.Marshal(result)
	if err := s.store.FinishJobRun(jobID, "success", string(details)); err != nil {
		log.Printf("Failed to record job run completion: %v", err)
	}
	return result, nil
}

func (s *Service) failJob(jobID int64, cause error) {
	if err := s.store.FinishJobRun(jobID, "failed", fmt.Sprintf(`{"error":%q}`, cause.Error())); err != nil {
		log.Printf("Failed to record job run failure: %v", err)
	}
}

// convertBatch turns the wire-format batch into storage types. Money
// fields arrive as decimal strings and are parsed exactly before the
// conversion to the store's float representation.
func convertBatch(batch *models.StatementBatch) (*models.NormalizedStatement, error) {
	stmt := &models.NormalizedStatement{
		File: models.StatementFile{
			Institution:   batch.Institution,
			FilePath:      batch.FilePath,
			FormatVersion: batch.FormatVersion,
			Checksum:      batch.Checksum,
			ParseMessage:  batch.ParseMessage,
			ParseStatus:   "success",
		},
	}
	if len(batch.Issues) > 0 || len(batch.Events) == 0 {
		stmt.File.ParseStatus = "warning"
	}
	if len(batch.Accounts) > 0 {
		stmt.File.AccountID = batch.Accounts[0].AccountID
	}

	var err error
	if stmt.File.PeriodStart, err = parseDatePtr("period_start", batch.PeriodStart); err != nil {
		return nil, err
	}
	if stmt.File.PeriodEnd, err = parseDatePtr("period_end", batch.PeriodEnd); err != nil {
		return nil, err
	}

	for _, acct := range batch.Accounts {
		stmt.Accounts = append(stmt.Accounts, models.Account{
			AccountID:    acct.AccountID,
			Institution:  acct.Institution,
			AccountName:  acct.AccountName,
			AccountType:  acct.AccountType,
			BaseCurrency: acct.BaseCurrency,
			MaskedNumber: maskAccount(acct.AccountID, acct.MaskedNumber),
		})
	}

	for i := range batch.Events {
		item, err := convertEvent(&batch.Events[i])
		if err != nil {
			return nil, err
		}
		stmt.Events = append(stmt.Events, *item)
	}

	for _, snap := range batch.Snapshots {
		value, err := parseAmount("value_native", snap.Value)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, fmt.Errorf("snapshot %s for account %s has no value", snap.MetricCode, snap.AccountID)
		}
		date, err := parseDatePtr("snapshot_date", snap.SnapshotDate)
		if err != nil {
			return nil, err
		}
		stmt.Snapshots = append(stmt.Snapshots, models.Snapshot{
			AccountID:     snap.AccountID,
			SnapshotDate:  date,
			MetricCode:    snap.MetricCode,
			Currency:      snap.Currency,
			Value:         *value,
			SourceLineRef: snap.SourceLineRef,
			RawLine:       snap.RawLine,
		})
	}

	for _, issue := range batch.Issues {
		line := models.QuarantineLine{
			Institution: batch.Institution,
			FilePath:    batch.FilePath,
			RawLine:     issue.RawLine,
			Reason:      issue.Reason,
		}
		if issue.PageNumber > 0 {
			page := issue.PageNumber
			line.PageNumber = &page
		}
		stmt.Issues = append(stmt.Issues, line)
	}

	return stmt, nil
}

func convertEvent(ev *models.BatchEvent) (*models.EventWithInstrument, error) {
	tradeDate, err := parseDate("trade_date", ev.TradeDate)
	if err != nil {
		return nil, err
	}
	settleDate, err := parseDatePtr("settle_date", ev.SettleDate)
	if err != nil {
		return nil, err
	}

	item := &models.EventWithInstrument{
		Event: models.Event{
			AccountID:     ev.AccountID,
			TradeDate:     tradeDate,
			SettleDate:    settleDate,
			EventType:     ev.EventType,
			Side:          ev.Side,
			Currency:      ev.Currency,
			SourceLineRef: ev.SourceLineRef,
			Notes:         ev.Notes,
		},
	}

	if item.Event.Quantity, err = parseAmount("quantity", ev.Quantity); err != nil {
		return nil, err
	}
	if item.Event.Price, err = parseAmount("price", ev.Price); err != nil {
		return nil, err
	}
	if item.Event.GrossAmount, err = parseAmount("gross_amount", ev.GrossAmount); err != nil {
		return nil, err
	}
	if item.Event.Commission, err = parseAmountDefault("commission", ev.Commission); err != nil {
		return nil, err
	}
	if item.Event.Fees, err = parseAmountDefault("fees", ev.Fees); err != nil {
		return nil, err
	}

	if ev.Instrument != nil {
		inst, err := convertInstrument(ev.Instrument)
		if err != nil {
			return nil, err
		}
		item.Instrument = inst
	}
	return item, nil
}

func convertInstrument(in *models.BatchInstrument) (*models.Instrument, error) {
	inst := &models.Instrument{
		SymbolRaw:  in.SymbolRaw,
		SymbolNorm: in.SymbolNorm,
		AssetType:  in.AssetType,
		OptionRoot: in.OptionRoot,
		PutCall:    in.PutCall,
		Multiplier: in.Multiplier,
		Exchange:   in.Exchange,
		Sector:     in.Sector,
	}
	if inst.Multiplier == 0 {
		if in.AssetType == "option" {
			inst.Multiplier = 100
		} else {
			inst.Multiplier = 1
		}
	}
	strike, err := parseAmount("strike", in.Strike)
	if err != nil {
		return nil, err
	}
	inst.Strike = strike
	expiry, err := parseDatePtr("expiry", in.Expiry)
	if err != nil {
		return nil, err
	}
	inst.Expiry = expiry
	return inst, nil
}

// failedStatement records a file whose payload could not be converted,
// so the failure is visible in statement_files
func failedStatement(batch *models.StatementBatch, cause error) *models.NormalizedStatement {
	return &models.NormalizedStatement{
		File: models.StatementFile{
			Institution:   batch.Institution,
			FilePath:      batch.FilePath,
			FormatVersion: "failed",
			ParseStatus:   "failed",
			ParseMessage:  cause.Error(),
			Checksum:      batch.Checksum,
		},
	}
}

func parseAmount(field, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	f, _ := d.Float64()
	return &f, nil
}

func parseAmountDefault(field, value string) (float64, error) {
	v, err := parseAmount(field, value)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return *v, nil
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return t, nil
}

func parseDatePtr(field, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func maskAccount(accountID, masked string) string {
	if masked != "" {
		return masked
	}
	if len(accountID) <= 4 {
		return accountID
	}
	prefix := make([]byte, len(accountID)-4)
	for i := range prefix {
		prefix[i] = '*'
	}
	return string(prefix) + accountID[len(accountID)-4:]
}
