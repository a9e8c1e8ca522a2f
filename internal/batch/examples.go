package batch

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aeshef/knowledge-bot/internal/pipeline"
)

// exampleColumns is the expected header of an examples CSV. Missing columns
// are appended; extra columns pass through untouched.
var exampleColumns = []string{
	"id",
	"input_type",
	"input",
	"expected_type",
	"expected_title",
	"expected_tags",
	"expected_fields_json",
	"notes",
}

// FillExamples reads an examples CSV, runs the pipeline over every row with
// a non-empty input, and writes the expected_* columns to outPath. Rows that
// already carry an expected_type are skipped unless force is set. Returns
// the number of rows processed.
func (r *Runner) FillExamples(ctx context.Context, inPath, outPath string, force bool) (int, error) {
	f, err := os.Open(inPath)
	if err != nil {
		return 0, fmt.Errorf("batch: open %s: %w", inPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("batch: read %s: %w", inPath, err)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("batch: %s is empty", inPath)
	}

	header := rows[0]
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, name := range exampleColumns {
		if _, ok := col[name]; !ok {
			col[name] = len(header)
			header = append(header, name)
		}
	}
	rows[0] = header

	processed := 0
	for i := 1; i < len(rows); i++ {
		row := pad(rows[i], len(header))
		rows[i] = row

		input := strings.TrimSpace(row[col["input"]])
		if input == "" {
			continue
		}
		if !force && strings.TrimSpace(row[col["expected_type"]]) != "" {
			continue
		}

		summary := r.summarize(ctx, input)
		res, err := r.pipe.Run(ctx, summary, pipeline.RunOptions{Source: "examples"})
		if err != nil {
			row[col["notes"]] = "error: " + err.Error()
			continue
		}

		p := res.Payload
		row[col["expected_type"]] = p.Type
		row[col["expected_title"]] = p.Title
		row[col["expected_tags"]] = strings.Join(p.Tags, ",")
		if len(p.Fields) > 0 {
			fields, _ := json.Marshal(p.Fields)
			row[col["expected_fields_json"]] = string(fields)
		}
		processed++
	}

	out, err := os.Create(outPath)
	if err != nil {
		return processed, fmt.Errorf("batch: create %s: %w", outPath, err)
	}
	defer out.Close()

	w := csv.NewWriter(out)
	if err := w.WriteAll(rows); err != nil {
		return processed, fmt.Errorf("batch: write %s: %w", outPath, err)
	}
	return processed, nil
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}
