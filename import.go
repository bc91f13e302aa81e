package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stevemurr/dataset-server/document"
)

var importBatchSize int

var importCmd = &cobra.Command{
	Use:   "import <dataset> <file>",
	Short: "Insert records from a JSON array or newline-delimited JSON file",
	Long: `Reads a file holding either a JSON array of objects or one JSON object per
line and inserts the records into the dataset in file order. Use "-" to read
from standard input.`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().IntVar(&importBatchSize, "batch-size", 500, "records per insert batch")
}

func runImport(cmd *cobra.Command, args []string) error {
	name, path := args[0], args[1]

	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	docs, err := parseRecords(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(docs) == 0 {
		return fmt.Errorf("%s holds no records", path)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()
	svc := a.service()

	size := importBatchSize
	if size < 1 {
		size = len(docs)
	}
	total := 0
	for start := 0; start < len(docs); start += size {
		end := min(start+size, len(docs))
		recs, err := svc.InsertBatch(cmd.Context(), name, docs[start:end])
		if err != nil {
			return fmt.Errorf("after %d records: %w", total, err)
		}
		total += len(recs)
	}

	a.log.Info("import finished", zap.String("dataset", name), zap.Int("records", total))
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", total, name)
	return nil
}

// parseRecords accepts a JSON array of objects or newline-delimited objects.
func parseRecords(data []byte) ([]document.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var docs []document.Document
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, err
		}
		return docs, nil
	}

	var docs []document.Document
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		doc, err := document.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
