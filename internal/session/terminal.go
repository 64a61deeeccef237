package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/sirupsen/logrus"
)

const resultTextWidth = 72

// Terminal prints a result card for every completed cycle and logs status
// changes. Plain frames are ignored.
type Terminal struct {
	out io.Writer
	log *logrus.Logger

	mu         sync.Mutex
	lastStatus Status
}

func NewTerminal(out io.Writer, log *logrus.Logger) *Terminal {
	return &Terminal{out: out, log: log}
}

func (t *Terminal) Render(_ context.Context, v View) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.Status.Message != "" && v.Status != t.lastStatus {
		t.lastStatus = v.Status
		entry := t.log.WithFields(logrus.Fields{"state": v.State})
		switch v.Status.Level {
		case LevelError:
			entry.Error(v.Status.Message)
		case LevelWarn:
			entry.Warn(v.Status.Message)
		default:
			entry.Info(v.Status.Message)
		}
	}

	if !v.Fresh || v.Detection == nil {
		return nil
	}

	_, err := fmt.Fprintln(t.out, ResultCard(v))
	return err
}

// ResultCard renders a detection and its advice as a table.
func ResultCard(v View) string {
	d := v.Detection

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle("Detection Result")
	tw.AppendRow(table.Row{"Time", d.Timestamp.Format("15:04:05")})
	tw.AppendRow(table.Row{"Crop", d.Crop.Title()})
	tw.AppendRow(table.Row{"Status", d.StatusText()})
	tw.AppendRow(table.Row{"Detection", d.DisplayName()})

	recommendation := "No advice available"
	if v.Advice != nil {
		recommendation = v.Advice.Text
		if v.Cached {
			recommendation += " (cached)"
		}
	}
	tw.AppendRow(table.Row{"Recommendation", recommendation})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, Colors: text.Colors{text.Bold}},
		{Number: 2, Align: text.AlignLeft, WidthMax: resultTextWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	return tw.Render()
}
