package rowfill

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Processor orchestrates a full run: load the table, index embedded
// images, filter already-completed rows, dispatch the rest and snapshot
// the results. It also backs the reset and status CLI surfaces.
type Processor struct {
	cfg *Config
	log *slog.Logger
}

// NewProcessor validates the configuration and returns a Processor.
func NewProcessor(cfg *Config, log *slog.Logger) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if log == nil {
		log = slog.Default()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model_name is required")
	}
	if cfg.InputFile == "" {
		return nil, fmt.Errorf("input_file is required")
	}
	return &Processor{cfg: cfg, log: log}, nil
}

// Run processes every pending row and returns once all work is dispatched
// and the final snapshot is written. Per-row failures do not abort the
// run; load and snapshot failures do.
func (p *Processor) Run(ctx context.Context) error {
	cfg := p.cfg

	table, err := LoadTable(cfg.InputFile, p.log)
	if err != nil {
		return err
	}
	resultCol := table.EnsureColumn(ResultColumn(cfg.Model))

	system, err := LoadSystemPrompt(cfg.PromptFile)
	if err != nil {
		return err
	}
	if system == "" {
		return fmt.Errorf("system prompt file %s is empty", cfg.PromptFile)
	}

	images := p.buildImageIndex(table)

	pending := Pending(table, resultCol)
	p.log.Info("run starting",
		"input", cfg.InputFile,
		"model", cfg.Model,
		"rows", table.Len(),
		"pending", len(pending),
		"workers", cfg.Workers)
	if len(pending) == 0 {
		p.log.Info("nothing to do, all rows already have results")
		return nil
	}

	tasks, err := p.buildTasks(table, pending, images)
	if err != nil {
		return err
	}

	provider, err := NewProvider(ctx, cfg, p.log)
	if err != nil {
		return err
	}

	store := NewResultStore(table, resultCol, p.log)
	scheduler := NewScheduler(store, p.log,
		WithWorkers(cfg.Workers),
		WithTaskDelay(cfg.TaskDelay()),
		WithSnapshotEvery(cfg.SnapshotEvery),
		WithProgressBar(true),
	)

	call := func(ctx context.Context, task Task) (string, error) {
		req := Request{
			System:      system,
			Prompt:      task.Prompt,
			Image:       task.Image,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			ImageDetail: cfg.ImageDetail,
		}
		raw, err := callWithRetry(ctx, provider, req, cfg.MaxRetries, cfg.RetryDelay(), cfg.Timeout(), p.log)
		if err != nil {
			return "", err
		}
		obj, err := ExtractJSON(raw)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(obj)
		if err != nil {
			return "", fmt.Errorf("serialize result: %w", err)
		}
		return string(out), nil
	}

	completed, err := scheduler.Run(ctx, tasks, call)
	if err != nil {
		return err
	}
	p.log.Info("run finished", "completed", completed, "output", table.OutputPath())
	return nil
}

// buildImageIndex builds the embedded image index for workbook input.
// Failures downgrade the run to text-only rather than aborting it.
func (p *Processor) buildImageIndex(table *Table) *ImageIndex {
	if table.Format() != FormatXLSX {
		return nil
	}
	ix, err := BuildImageIndex(table.Path(), p.log)
	if err != nil {
		p.log.Warn("embedded image extraction failed, proceeding text-only", "error", err)
		return nil
	}
	if ix.Strategy() == StrategyFallbackSequential {
		// The fallback trusts that media-directory order matches visual
		// row order, which the container format does not guarantee.
		p.log.Warn("no drawing anchors resolved; images assigned by filename order, verify the mapping",
			"images", ix.Len())
	}
	return ix
}

// buildTasks assembles the unit of work for each pending row.
func (p *Processor) buildTasks(table *Table, pending []int, images *ImageIndex) ([]Task, error) {
	cfg := p.cfg

	promptCol := table.ColumnIndex(cfg.PromptColumn)
	if promptCol < 0 {
		// A missing prompt column is not fatal: rows proceed with empty
		// prompts, which is only useful for image-only datasets.
		p.log.Warn("prompt column missing, treating every prompt as empty", "column", cfg.PromptColumn)
	}
	imageCol := -1
	if cfg.ImageColumn != "" {
		imageCol = table.ColumnIndex(cfg.ImageColumn)
		if imageCol < 0 {
			p.log.Warn("image column missing", "column", cfg.ImageColumn)
		}
	}
	renderer := NewPromptRenderer(cfg.PromptTemplate)

	tasks := make([]Task, 0, len(pending))
	for _, row := range pending {
		prompt := ""
		if promptCol >= 0 {
			prompt = table.Cell(row, promptCol)
		}
		if renderer != nil {
			rendered, err := renderer.Render(prompt, rowContext(table, row))
			if err != nil {
				return nil, err
			}
			prompt = rendered
		}

		task := Task{Row: row, Prompt: prompt}
		if images != nil {
			if payload, ok := images.Get(table.SheetRow(row)); ok {
				task.Image = &payload
			}
		}
		if task.Image == nil && imageCol >= 0 {
			if ref := strings.TrimSpace(table.Cell(row, imageCol)); ref != "" {
				payload, err := LoadImageFile(ref, cfg.ImageBasePath)
				if err != nil {
					// Degrade to text-only for this row.
					p.log.Warn("image unavailable, sending text only", "row", row, "image", ref, "error", err)
				} else {
					task.Image = payload
				}
			}
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Reset clears the model's result column and snapshots the table, making
// every row pending again on the next run.
func (p *Processor) Reset() error {
	table, err := LoadTable(p.cfg.InputFile, p.log)
	if err != nil {
		return err
	}
	col := table.ColumnIndex(ResultColumn(p.cfg.Model))
	if col < 0 {
		p.log.Info("no results to reset", "column", ResultColumn(p.cfg.Model))
		return nil
	}
	for row := 0; row < table.Len(); row++ {
		table.SetCell(row, col, "")
	}
	if err := table.Save(); err != nil {
		return err
	}
	p.log.Info("results cleared", "column", ResultColumn(p.cfg.Model), "rows", table.Len())
	return nil
}

// Status writes a short completion summary for the configured input and
// model.
func (p *Processor) Status(w io.Writer) error {
	table, err := LoadTable(p.cfg.InputFile, p.log)
	if err != nil {
		return err
	}

	total := table.Len()
	done := 0
	if col := table.ColumnIndex(ResultColumn(p.cfg.Model)); col >= 0 {
		done = total - len(Pending(table, col))
	}

	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	fmt.Fprintf(w, "total rows: %d\n", total)
	fmt.Fprintf(w, "completed:  %d\n", done)
	fmt.Fprintf(w, "pending:    %d\n", total-done)
	fmt.Fprintf(w, "progress:   %.1f%%\n", pct)
	return nil
}
