// Package exporter writes the per-kind results of an analysis run as CSV or
// as an Excel workbook.
//
// Both formats share the same table: one row per kind in run order with its
// status, timing, error and a compact JSON rendering of the result.
//
// Example usage:
//
//	format, err := exporter.ParseFormat(r.URL.Query().Get("format"))
//	if err != nil {
//		return err
//	}
//	w.Header().Set("Content-Type", format.ContentType())
//	err = exporter.Export(w, format, orchestrator.State())
package exporter
