package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func TestRenderRewardChartEmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderRewardChart(&buf, "run-1", nil); err == nil {
		t.Fatal("expected error for empty history")
	}
}

func TestRenderRewardChartProducesHTML(t *testing.T) {
	history := []float64{-20, 15, 104, 704}

	var buf bytes.Buffer
	if err := RenderRewardChart(&buf, "run-1", history); err != nil {
		t.Fatalf("render chart: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "<html>") && !strings.Contains(out, "<!DOCTYPE html>") {
		t.Fatalf("output is not an HTML page:\n%.200s", out)
	}
	if !strings.Contains(out, "episode rewards (run-1)") {
		t.Fatal("chart title missing")
	}
	if !strings.Contains(out, "704") {
		t.Fatal("reward values missing from chart data")
	}
}

func TestTrailingAverage(t *testing.T) {
	history := []float64{1, 2, 3, 4}

	cases := []struct {
		end    int
		window int
		want   float64
	}{
		{end: 0, window: 3, want: 1},
		{end: 2, window: 3, want: 2},
		{end: 3, window: 2, want: 3.5},
		{end: 3, window: 10, want: 2.5},
	}
	for _, tc := range cases {
		got := trailingAverage(history, tc.end, tc.window)
		if math.Abs(got-tc.want) > 1e-12 {
			t.Fatalf("trailingAverage(end=%d, window=%d): got %f want %f", tc.end, tc.window, got, tc.want)
		}
	}
}
