package export

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/go-co-op/gocron"
	"github.com/shrimpsizemoose/trekker/logger"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/shrimpsizemoose/yogaroll/internal/app"
	"github.com/shrimpsizemoose/yogaroll/internal/models"
)

// SheetWriter puts a block of values into a spreadsheet range.
type SheetWriter interface {
	Write(ctx context.Context, sheetID, writeRange string, values [][]interface{}) error
}

type sheetsWriter struct {
	svc *sheets.Service
}

func (w *sheetsWriter) Write(ctx context.Context, sheetID, writeRange string, values [][]interface{}) error {
	_, err := w.svc.Spreadsheets.Values.Update(sheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

type GSheetExporter struct {
	service   *app.Service
	scheduler *gocron.Scheduler
}

func NewGSheetExporter(ctx context.Context, service *app.Service) (*GSheetExporter, error) {
	if len(service.Config.GSheet) == 0 {
		return nil, fmt.Errorf("no [[gsheet]] targets configured")
	}

	e := newExporter(service)
	for _, cfg := range service.Config.GSheet {
		svc, err := sheets.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath))
		if err != nil {
			return nil, fmt.Errorf("failed to create sheets service for %s: %w", cfg.SheetID, err)
		}
		if err := e.Schedule(cfg, &sheetsWriter{svc: svc}); err != nil {
			return nil, err
		}
	}

	return e, nil
}

func newExporter(service *app.Service) *GSheetExporter {
	return &GSheetExporter{
		service:   service,
		scheduler: gocron.NewScheduler(service.Config.Location()),
	}
}

func (e *GSheetExporter) Schedule(cfg app.GSheetConfig, writer SheetWriter) error {
	_, err := e.scheduler.Cron(cfg.Schedule).Do(func() {
		if err := e.Export(context.Background(), cfg, writer); err != nil {
			logger.Error.Printf("Export to %s failed: %v", cfg.SheetID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule export %q: %w", cfg.Schedule, err)
	}
	return nil
}

func (e *GSheetExporter) Start() {
	e.scheduler.StartAsync()
}

func (e *GSheetExporter) Stop() {
	e.scheduler.Stop()
}

func (e *GSheetExporter) Jobs() int {
	return len(e.scheduler.Jobs())
}

// Export writes today's attendance sheet and stamps the update time.
func (e *GSheetExporter) Export(ctx context.Context, cfg app.GSheetConfig, writer SheetWriter) error {
	rows, err := e.service.ListTodayAttendance(ctx)
	if err != nil {
		return fmt.Errorf("failed to read attendance: %w", err)
	}

	today := e.service.Today().Format(e.service.Config.Display.DateFormat)
	targetRange := fmt.Sprintf("%s!%s", cfg.SheetName, cfg.TargetRange)
	if err := writer.Write(ctx, cfg.SheetID, targetRange, BuildSheet(today, rows)); err != nil {
		return fmt.Errorf("failed to write attendance: %w", err)
	}

	if cfg.TimestampRange == "" {
		return nil
	}

	emojis := e.service.Config.EmojiVariants
	emoji := emojis[rand.Intn(len(emojis))]
	now := e.service.Now().In(e.service.Config.Location())
	timestamp := fmt.Sprintf("UPD: %s %s", now.Format("2 January 15:04"), emoji)

	updateRange := fmt.Sprintf("%s!%s", cfg.SheetName, cfg.TimestampRange)
	if err := writer.Write(ctx, cfg.SheetID, updateRange, [][]interface{}{{timestamp}}); err != nil {
		return fmt.Errorf("failed to write timestamp: %w", err)
	}

	logger.Info.Printf("Exported %d students to %s", len(rows), cfg.SheetID)
	return nil
}

// BuildSheet lays out a report as a header row followed by one row per student.
func BuildSheet(date string, rows []models.RosterEntry) [][]interface{} {
	values := make([][]interface{}, 0, len(rows)+1)
	values = append(values, []interface{}{"Last name", "First name", date})
	for _, row := range rows {
		values = append(values, []interface{}{
			row.Student.LastName,
			row.Student.FirstName,
			row.Status.Label(),
		})
	}
	return values
}
