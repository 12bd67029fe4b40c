// Package forward delivers normalized events to an HTTP event collector.
//
// Every event is sent in its own request; a failed delivery is recorded and
// the next event is attempted. There is no retry queue: delivery is at most
// once per event.
package forward

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/memsift/pkg/normalize"
	"github.com/vulntor/memsift/pkg/stringutil"
)

const (
	// DefaultScheme is the Authorization scheme the collector expects.
	DefaultScheme = "Splunk"
	// DefaultSourceType tells the collector not to extract timestamps.
	DefaultSourceType = "_json_no_timestamp"
	// DefaultIndex is the index memory events land in.
	DefaultIndex = "memory"

	maxErrorBody = 512
)

// Options configures a Forwarder.
type Options struct {
	URL                string
	Token              string
	Scheme             string
	Index              string
	SourceType         string
	InsecureSkipVerify bool
	Timeout            time.Duration
	Client             *http.Client // overrides the transport settings above
	Logger             *zerolog.Logger
}

// Payload is the collector request body. Event holds the JSON-encoded event
// as a string.
type Payload struct {
	Event      string `json:"event"`
	SourceType string `json:"sourcetype"`
	Index      string `json:"index"`
}

// Failure describes one undelivered event.
type Failure struct {
	Index      int    `json:"index"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// Report summarizes a Send call.
type Report struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failures  []Failure `json:"failures,omitempty"`
}

// Failed returns the number of undelivered events.
func (r Report) Failed() int {
	return len(r.Failures)
}

// Add folds another report into r.
func (r *Report) Add(other Report) {
	offset := r.Attempted
	r.Attempted += other.Attempted
	r.Delivered += other.Delivered
	for _, f := range other.Failures {
		f.Index += offset
		r.Failures = append(r.Failures, f)
	}
}

// Sender is the delivery contract the orchestrator depends on.
type Sender interface {
	Send(ctx context.Context, events []normalize.Event) Report
}

// Forwarder posts events to the collector endpoint.
type Forwarder struct {
	url        string
	authHeader string
	index      string
	sourceType string
	client     *http.Client
	logger     zerolog.Logger
}

// New returns a Forwarder. When InsecureSkipVerify is set the client does
// not validate the collector's certificate; this is logged at warn level.
func New(opts Options) (*Forwarder, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("forward: collector URL is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("forward: collector token is required")
	}

	f := &Forwarder{
		url:        opts.URL,
		authHeader: orDefault(opts.Scheme, DefaultScheme) + " " + opts.Token,
		index:      orDefault(opts.Index, DefaultIndex),
		sourceType: orDefault(opts.SourceType, DefaultSourceType),
		client:     opts.Client,
	}
	if opts.Logger != nil {
		f.logger = *opts.Logger
	} else {
		f.logger = log.With().Str("component", "forward").Logger()
	}

	if f.client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			// #nosec G402 -- collector is expected on localhost or a trusted network.
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		f.client = &http.Client{Transport: transport, Timeout: opts.Timeout}
	}
	if opts.InsecureSkipVerify {
		f.logger.Warn().Str("url", opts.URL).Msg("TLS certificate verification disabled for collector")
	}
	return f, nil
}

// Send delivers events one request each, in order.
func (f *Forwarder) Send(ctx context.Context, events []normalize.Event) Report {
	report := Report{}
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			// remaining events are reported as failed, not silently lost
			for j := i; j < len(events); j++ {
				report.Attempted++
				report.Failures = append(report.Failures, Failure{Index: j, Error: err.Error()})
			}
			break
		}

		report.Attempted++
		status, err := f.sendOne(ctx, ev)
		if err != nil {
			report.Failures = append(report.Failures, Failure{Index: i, StatusCode: status, Error: err.Error()})
			f.logger.Error().Err(err).Int("event", i).Int("status", status).
				Interface("plugin", ev[normalize.FieldPlugin]).Msg("failed to deliver event")
			continue
		}
		report.Delivered++
	}
	return report
}

func (f *Forwarder) sendOne(ctx context.Context, ev normalize.Event) (int, error) {
	encoded, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	body, err := json.Marshal(Payload{Event: string(encoded), SourceType: f.sourceType, Index: f.index})
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", f.authHeader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("unexpected status code: %d: %s",
			resp.StatusCode, stringutil.Ellipsis(string(msg), 200))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
