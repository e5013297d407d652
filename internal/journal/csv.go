package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"basis-arb-bot/internal/strategy"
)

var Header = []string{"ts", "action", "when", "basis", "nabt_ntby", "profit"}

// CSV appends one row per trade event and syncs the file after each write.
type CSV struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
}

// OpenCSV opens path for appending, creating it with a header when empty.
func OpenCSV(path string) (*CSV, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	j := &CSV{file: file, w: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := j.write(Header); err != nil {
			_ = file.Close()
			return nil, err
		}
	}
	return j, nil
}

func (j *CSV) Record(_ context.Context, ev strategy.TradeEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return os.ErrClosed
	}
	return j.write(Row(ev))
}

func (j *CSV) write(record []string) error {
	if err := j.w.Write(record); err != nil {
		return err
	}
	j.w.Flush()
	if err := j.w.Error(); err != nil {
		return err
	}
	return j.file.Sync()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Row renders ev in journal column order. profit is empty for entries.
func Row(ev strategy.TradeEvent) []string {
	profit := ""
	if ev.Action == strategy.ActionExit && ev.Profitable != nil {
		profit = "0"
		if *ev.Profitable {
			profit = "1"
		}
	}
	return []string{
		ev.Timestamp.Format(time.RFC3339),
		string(ev.Action),
		ev.When,
		strconv.FormatFloat(ev.Basis, 'f', -1, 64),
		strconv.FormatFloat(ev.NetBuy, 'f', -1, 64),
		profit,
	}
}
