package types

// RecordRow is one row of the Record-Batch output, matching the fixed
// Parquet schema: url and success are non-null; content, status_code, and
// error are nullable; duration_ms is non-null.
type RecordRow struct {
	URL        string  `parquet:"url,dict"`
	Success    bool    `parquet:"success"`
	Content    *string `parquet:"content,dict,optional"`
	StatusCode *int32  `parquet:"status_code,optional"`
	Error      *string `parquet:"error,dict,optional"`
	DurationMs uint64  `parquet:"duration_ms"`
}

// NewRecordRow projects a Fetch-Result into its output row. A Fetch-Result
// with Blocked set has neither content nor a status code but still carries
// the block reason as Error.
func NewRecordRow(r FetchResult) RecordRow {
	row := RecordRow{
		URL:        r.URL,
		Success:    r.Success,
		DurationMs: uint64(r.Duration.Milliseconds()),
	}
	if r.Success && r.Content != nil {
		s := string(r.Content)
		row.Content = &s
	}
	if r.StatusCode != 0 {
		sc := int32(r.StatusCode)
		row.StatusCode = &sc
	}
	if !r.Success && r.Error != "" {
		e := r.Error
		row.Error = &e
	}
	return row
}
