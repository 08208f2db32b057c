package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"

	apperrors "github.com/JustinTDCT/cinescript/internal/errors"
	"github.com/JustinTDCT/cinescript/internal/models"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONFile writes v to path, or to w when path is empty or "-".
func writeJSONFile(w io.Writer, path string, v any) error {
	if path == "" || path == "-" {
		return writeJSON(w, v)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeJSON(f, v); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parseID(kind, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperrors.InvalidRange("invalid %s id %q", kind, s).WithCause(err)
	}
	return id, nil
}

func formatRange(sr *models.SkipRange) string {
	return fmt.Sprintf("%s\t%.3f\t%.3f\t%.3f\t%s", sr.ID, sr.Interval.Start, sr.Interval.End, sr.Interval.Duration(), deref(sr.Reason))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
