package grafana

import "fmt"

// Row is one decoded frame row, keyed by field name.
type Row = map[string]any

// Field describes one column of a columnar frame.
type Field struct {
	Name string `json:"name"`
}

// Schema carries the ordered field list of a frame.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FrameData holds one value array per schema field, all of equal length.
type FrameData struct {
	Values [][]any `json:"values"`
}

// Frame is a column-oriented result set as returned by the datasource query
// API: a field-name list plus parallel value arrays.
type Frame struct {
	Schema Schema    `json:"schema"`
	Data   FrameData `json:"data"`
}

// QueryResult is the per-refID result envelope.
type QueryResult struct {
	Frames []Frame `json:"frames"`
}

// QueryResponse is the top-level datasource query response, one result per
// query refID.
type QueryResponse struct {
	Results map[string]QueryResult `json:"results"`
}

// Rows transposes the frame into row objects, one per row index, each mapping
// every field name to that row's value from its column. A frame with no
// fields or no values yields zero rows. Ragged value arrays are a contract
// violation and return an error; upstream never produces them from a healthy
// query.
func (f *Frame) Rows() ([]Row, error) {
	if f == nil || len(f.Schema.Fields) == 0 || len(f.Data.Values) == 0 {
		return nil, nil
	}
	if len(f.Schema.Fields) != len(f.Data.Values) {
		return nil, fmt.Errorf("frame has %d fields but %d value columns", len(f.Schema.Fields), len(f.Data.Values))
	}
	rowCount := len(f.Data.Values[0])
	for i, col := range f.Data.Values {
		if len(col) != rowCount {
			return nil, fmt.Errorf("column %q has %d values, expected %d", f.Schema.Fields[i].Name, len(col), rowCount)
		}
	}

	rows := make([]Row, rowCount)
	for r := 0; r < rowCount; r++ {
		row := make(Row, len(f.Schema.Fields))
		for c, field := range f.Schema.Fields {
			row[field.Name] = f.Data.Values[c][r]
		}
		rows[r] = row
	}
	return rows, nil
}

// FirstFrameRows decodes the first frame under the given result key. A
// missing key or an empty frame list is a valid no-data response and yields
// zero rows; the caller's freshness tracking decides what to do about it.
func (r *QueryResponse) FirstFrameRows(key string) ([]Row, error) {
	if r == nil {
		return nil, nil
	}
	res, ok := r.Results[key]
	if !ok || len(res.Frames) == 0 {
		return nil, nil
	}
	return res.Frames[0].Rows()
}
