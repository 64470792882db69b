package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tablebot/booking"
)

var header = []string{
	"ID",
	"UserID",
	"Establishment",
	"DateTime",
	"Guests",
	"Name",
	"Phone",
	"CreatedAt",
}

// Entry is one delivered booking as stored in the journal.
type Entry struct {
	ID        string
	UserID    int64
	Record    booking.Record
	CreatedAt time.Time
}

// CSV appends delivered bookings to a CSV file.
type CSV struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
	now  func() time.Time
}

// Open prepares the journal file, writing the header when the file is new.
func Open(path string, log *zap.Logger) (*CSV, error) {
	if log == nil {
		log = zap.NewNop()
	}
	j := &CSV{path: path, log: log, now: time.Now}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		file, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create journal: %w", err)
		}
		defer file.Close()

		w := csv.NewWriter(file)
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("write journal header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("write journal header: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	return j, nil
}

// Append writes one booking with a fresh id. userID is 0 when the booking
// reached staff without a known guest; such rows never show up in
// UserBookings.
func (j *CSV) Append(userID int64, r booking.Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	e := Entry{ID: uuid.NewString(), UserID: userID, Record: r, CreatedAt: j.now()}
	w := csv.NewWriter(file)
	if err := w.Write([]string{
		e.ID,
		strconv.FormatInt(e.UserID, 10),
		r.Establishment,
		r.DateTime,
		strconv.Itoa(r.Guests),
		r.Name,
		r.Phone,
		e.CreatedAt.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}

	j.log.Debug("booking journaled", zap.String("id", e.ID), zap.Int64("user_id", userID))
	return nil
}

// ReadAll returns every well-formed entry. Rows that do not parse are
// logged and skipped.
func (j *CSV) ReadAll() ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal header: %w", err)
	}

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, fmt.Errorf("read journal: %w", err)
		}
		e, err := parseRow(row)
		if err != nil {
			j.log.Warn("skipping journal row", zap.Strings("row", row), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UserBookings returns the bookings journaled for userID, oldest first.
func (j *CSV) UserBookings(_ context.Context, userID int64) ([]booking.Record, error) {
	entries, err := j.ReadAll()
	if err != nil {
		return nil, err
	}
	var out []booking.Record
	for _, e := range entries {
		if e.UserID == userID {
			out = append(out, e.Record)
		}
	}
	return out, nil
}

func parseRow(row []string) (Entry, error) {
	if len(row) < len(header) {
		return Entry{}, fmt.Errorf("want %d columns, got %d", len(header), len(row))
	}
	userID, err := strconv.ParseInt(row[1], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("user id: %w", err)
	}
	guests, err := strconv.Atoi(row[4])
	if err != nil {
		return Entry{}, fmt.Errorf("guests: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, row[7])
	if err != nil {
		return Entry{}, fmt.Errorf("created at: %w", err)
	}
	return Entry{
		ID:     row[0],
		UserID: userID,
		Record: booking.Record{
			Establishment: row[2],
			DateTime:      row[3],
			Guests:        guests,
			Name:          row[5],
			Phone:         row[6],
		},
		CreatedAt: createdAt,
	}, nil
}
