package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"checkin-sync-service/internal/domain"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Client turns local assignment mutations into idempotent upserts against
// the attendance API. Transient failures (network errors, 5xx) are retried
// with exponential backoff up to three attempts; a terminal failure is
// reported to the caller, who keeps the optimistic local value regardless.
type Client struct {
	baseURL  string
	http     *http.Client
	attempts int
	backoff  time.Duration
	sleep    func(time.Duration)
}

func New(baseURL string) *Client {
	return NewWithTransport(baseURL, &http.Client{Timeout: 10 * time.Second}, time.Sleep)
}

// NewWithTransport allows tests to control the HTTP client and backoff sleep.
func NewWithTransport(baseURL string, httpClient *http.Client, sleep func(time.Duration)) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     httpClient,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		sleep:    sleep,
	}
}

// upsertBody is the POST /attendance wire form. Status exists because the
// backend is an attendance system first; check-ins always mark present.
type upsertBody struct {
	StudentID  int64     `json:"studentId"`
	ClassID    int64     `json:"classId"`
	Date       string    `json:"date"`
	QuestionID int64     `json:"questionId"`
	Status     string    `json:"status"`
	Answer     string    `json:"answer"`
	Notes      string    `json:"notes,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Upsert sends the record to the idempotent upsert endpoint keyed by
// (studentId, classId, date). The echoed stored record is discarded: local
// state stays the source of truth until the next hydrate.
func (c *Client) Upsert(ctx context.Context, rec domain.AssignmentRecord) error {
	body, err := json.Marshal(upsertBody{
		StudentID:  rec.StudentID,
		ClassID:    rec.ClassID,
		Date:       rec.Date,
		QuestionID: rec.QuestionID,
		Status:     "present",
		Answer:     rec.Answer,
		UpdatedAt:  rec.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal attendance record: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			c.sleep(c.backoff << (attempt - 1))
		}

		retryable, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrPersistFailed, lastErr)
}

// post performs one upsert attempt and classifies the failure.
func (c *Client) post(ctx context.Context, body []byte) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attendance", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("attendance upsert: status %d", resp.StatusCode)
	default:
		// 4xx is a malformed request, retrying will not help.
		return false, fmt.Errorf("attendance upsert: status %d", resp.StatusCode)
	}
}

// Fetch loads the persisted records for a class and date; the hydrate path.
func (c *Client) Fetch(ctx context.Context, classID int64, date string) ([]domain.AssignmentRecord, error) {
	query := url.Values{}
	query.Set("classId", strconv.FormatInt(classID, 10))
	query.Set("date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/attendance?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attendance: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attendance: status %d", resp.StatusCode)
	}

	var records []domain.AssignmentRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode attendance: %w", err)
	}
	return records, nil
}
