// Package recordings retrieves meeting transcripts from the cloud
// recordings API through a relay.
package recordings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/interpreter/internal/observability"
	"github.com/lexiqai/interpreter/internal/resilience"
)

const (
	fileTypeTranscript = "TRANSCRIPT"

	// DefaultMaxBytes bounds a response body when Config.MaxBytes is unset
	DefaultMaxBytes = 8 << 20
)

var (
	// ErrMissingCredential is returned when no access token is configured
	ErrMissingCredential = errors.New("recordings access token is not configured")
	// ErrNoTranscript is returned when a meeting has no transcript file
	ErrNoTranscript = errors.New("meeting has no transcript recording")
	// ErrTooLarge is returned when a response exceeds Config.MaxBytes
	ErrTooLarge = errors.New("recordings response too large")
)

// File is one recording file of a meeting
type File struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	DownloadURL   string `json:"download_url"`
	RecordingType string `json:"recording_type"`
	Status        string `json:"status"`
}

// Recording is the list response for one meeting
type Recording struct {
	UUID           string `json:"uuid"`
	Topic          string `json:"topic"`
	RecordingFiles []File `json:"recording_files"`
}

// Config holds client settings
type Config struct {
	APIURL   string // e.g. https://api.zoom.us/v2
	RelayURL string // prefix the escaped target URL is appended to; empty for direct calls
	Token    string
	MaxBytes int64 // response body limit; DefaultMaxBytes when zero
}

// Client talks to the recordings API
type Client struct {
	cfg        Config
	httpClient *http.Client
	guard      *resilience.Guard
	logger     zerolog.Logger
}

// NewClient creates a recordings client
func NewClient(cfg Config, httpClient *http.Client, guard *resilience.Guard, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		guard:      guard,
		logger:     observability.WithComponent(logger, "recordings"),
	}
}

// relayed wraps target in the relay prefix
func (c *Client) relayed(target string) string {
	if c.cfg.RelayURL == "" {
		return target
	}
	return c.cfg.RelayURL + url.QueryEscape(target)
}

// ListRecordings fetches the recording files of a meeting
func (c *Client) ListRecordings(ctx context.Context, meetingID string) (*Recording, error) {
	if c.cfg.Token == "" {
		return nil, ErrMissingCredential
	}

	target := fmt.Sprintf("%s/meetings/%s/recordings", c.cfg.APIURL, url.PathEscape(meetingID))
	body, err := c.get(ctx, c.relayed(target), map[string]string{
		"Authorization": "Bearer " + c.cfg.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	var rec Recording
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode recordings response: %w", err)
	}
	return &rec, nil
}

// FindTranscript returns the transcript file of rec
func FindTranscript(rec *Recording) (File, error) {
	if rec != nil {
		for _, f := range rec.RecordingFiles {
			if strings.EqualFold(f.FileType, fileTypeTranscript) {
				return f, nil
			}
		}
	}
	return File{}, ErrNoTranscript
}

// Download fetches a file's content. The token travels as a query
// parameter because the relay does not forward custom headers.
func (c *Client) Download(ctx context.Context, file File) (string, error) {
	if c.cfg.Token == "" {
		return "", ErrMissingCredential
	}

	u, err := url.Parse(file.DownloadURL)
	if err != nil {
		return "", fmt.Errorf("invalid download URL: %w", err)
	}
	q := u.Query()
	q.Set("access_token", c.cfg.Token)
	u.RawQuery = q.Encode()

	body, err := c.get(ctx, c.relayed(u.String()), nil)
	if err != nil {
		return "", fmt.Errorf("failed to download transcript: %w", err)
	}
	return string(body), nil
}

// FetchTranscript lists, locates and downloads a meeting's transcript
func (c *Client) FetchTranscript(ctx context.Context, meetingID string) (string, error) {
	rec, err := c.ListRecordings(ctx, meetingID)
	if err != nil {
		return "", err
	}
	file, err := FindTranscript(rec)
	if err != nil {
		return "", err
	}
	c.logger.Info().Str("meeting_id", meetingID).Str("file_id", file.ID).Msg("Downloading transcript")
	return c.Download(ctx, file)
}

func (c *Client) get(ctx context.Context, target string, headers map[string]string) ([]byte, error) {
	var body []byte
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > c.cfg.MaxBytes {
			return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.cfg.MaxBytes)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return resilience.NewRetryableError(err)
			}
			return err
		}
		body = data
		return nil
	})
	return body, err
}
