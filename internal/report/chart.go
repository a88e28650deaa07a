package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// chartAvgWindow is the trailing window of the smoothed reward series.
const chartAvgWindow = 25

// RenderRewardChart writes an HTML line chart of per-episode rewards plus a
// trailing-average series.
func RenderRewardChart(w io.Writer, runID string, history []float64) error {
	if len(history) == 0 {
		return errors.New("reward history is empty")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("episode rewards (%s)", runID),
		}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: "shine",
		}),
	)

	episodes := make([]string, len(history))
	rewards := make([]opts.LineData, 0, len(history))
	smoothed := make([]opts.LineData, 0, len(history))
	for i, reward := range history {
		episodes[i] = fmt.Sprintf("%d", i+1)
		rewards = append(rewards, opts.LineData{Value: reward})
		smoothed = append(smoothed, opts.LineData{Value: trailingAverage(history, i, chartAvgWindow)})
	}

	line.SetXAxis(episodes)
	line.AddSeries("reward", rewards)
	line.AddSeries(fmt.Sprintf("avg(%d)", chartAvgWindow), smoothed)

	page := components.NewPage()
	page.AddCharts(line)
	return page.Render(w)
}

func trailingAverage(history []float64, end, window int) float64 {
	start := end - window + 1
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range history[start : end+1] {
		sum += v
	}
	return sum / float64(end-start+1)
}
