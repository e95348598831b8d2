package grafana

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRows(t *testing.T) {
	frame := Frame{
		Schema: Schema{Fields: []Field{{Name: "country"}, {Name: "node_count"}}},
		Data: FrameData{Values: [][]any{
			{"US", "DE", "SG"},
			{float64(600), float64(400), float64(25)},
		}},
	}

	rows, err := frame.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "US", rows[0]["country"])
	assert.Equal(t, float64(600), rows[0]["node_count"])
	assert.Equal(t, "SG", rows[2]["country"])
	assert.Equal(t, float64(25), rows[2]["node_count"])
}

func TestFrameRowsEmpty(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{name: "zero value frame", frame: Frame{}},
		{name: "fields without values", frame: Frame{
			Schema: Schema{Fields: []Field{{Name: "a"}}},
		}},
		{name: "values without fields", frame: Frame{
			Data: FrameData{Values: [][]any{{1, 2}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := tt.frame.Rows()
			assert.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestFrameRowsRagged(t *testing.T) {
	frame := Frame{
		Schema: Schema{Fields: []Field{{Name: "a"}, {Name: "b"}}},
		Data: FrameData{Values: [][]any{
			{1, 2, 3},
			{4, 5},
		}},
	}
	_, err := frame.Rows()
	assert.Error(t, err)

	mismatched := Frame{
		Schema: Schema{Fields: []Field{{Name: "a"}}},
		Data:   FrameData{Values: [][]any{{1}, {2}}},
	}
	_, err = mismatched.Rows()
	assert.Error(t, err)
}

func TestFirstFrameRows(t *testing.T) {
	resp := &QueryResponse{
		Results: map[string]QueryResult{
			"A": {Frames: []Frame{{
				Schema: Schema{Fields: []Field{{Name: "node_count"}}},
				Data:   FrameData{Values: [][]any{{float64(1024)}}},
			}}},
		},
	}

	rows, err := resp.FirstFrameRows("A")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1024), rows[0]["node_count"])
}

func TestFirstFrameRowsAbsent(t *testing.T) {
	// Missing result key, empty frame list and nil receiver are all valid
	// "no data" responses, never errors.
	resp := &QueryResponse{Results: map[string]QueryResult{
		"B": {Frames: nil},
	}}

	rows, err := resp.FirstFrameRows("A")
	assert.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = resp.FirstFrameRows("B")
	assert.NoError(t, err)
	assert.Empty(t, rows)

	var nilResp *QueryResponse
	rows, err = nilResp.FirstFrameRows("A")
	assert.NoError(t, err)
	assert.Empty(t, rows)
}
