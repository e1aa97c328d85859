package client

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	boom := errors.New("boom")
	results := []Result{
		{OK: true, Duration: 2 * time.Second, Size: 200},
		{OK: true, Duration: time.Second, Size: 300},
		{OK: false, Duration: 3 * time.Second, Err: boom},
	}

	report := summarize(StressConfig{Operation: OpUpload}, results)

	assert.Equal(t, OpUpload, report.Operation)
	assert.Equal(t, 3, report.Clients)
	assert.Equal(t, 2, report.Success)
	assert.Equal(t, 1, report.Fail)
	assert.Equal(t, 2*time.Second, report.AvgDuration)
	assert.Equal(t, int64(500), report.TotalBytes)
	assert.InDelta(t, 200.0, report.AvgThroughput, 0.001)
	assert.Equal(t, []error{boom}, report.Errors)
}

func TestStressRejectsInvalidConfig(t *testing.T) {
	_, err := Stress(t.Context(), StressConfig{Operation: OpUpload, Clients: 0})
	assert.Error(t, err)

	_, err = Stress(t.Context(), StressConfig{Operation: "rename", Clients: 1})
	assert.Error(t, err)
}
