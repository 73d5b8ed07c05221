// Package apiclient calls the attendance REST backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroll/attendance/internal/apierr"
	"github.com/classroll/attendance/internal/credential"
	"github.com/classroll/attendance/internal/model"
	"github.com/classroll/attendance/internal/report"
)

// Client calls the attendance backend on behalf of the logged-in user.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Creds   credential.Store
	Log     *zap.Logger
}

// New creates a client with a request timeout.
func New(baseURL string, timeout time.Duration, creds credential.Store, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Creds:   creds,
		Log:     logger,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Login exchanges a username and password for a credential and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (credential.Credential, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return credential.Credential{}, apierr.NewValidationError(apierr.FieldError{Field: "username", Message: "username and password are required"})
	}
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.send(ctx, "", http.MethodPost, "/auth/login", body, &out); err != nil {
		return credential.Credential{}, err
	}
	cred, err := credential.FromToken(out.Token)
	if err != nil {
		return credential.Credential{}, &apierr.APIError{StatusCode: http.StatusOK, Message: "server returned an unreadable token"}
	}
	if err := c.Creds.Save(ctx, cred); err != nil {
		return credential.Credential{}, fmt.Errorf("store credential: %w", err)
	}
	return cred, nil
}

// Logout forgets the stored credential.
func (c *Client) Logout(ctx context.Context) error {
	return c.Creds.Clear(ctx)
}

// ListCourses returns the courses visible to the user.
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var out []model.Course
	if err := c.do(ctx, http.MethodGet, "/courses", nil, &out); err != nil {
		return nil, err
	}
	for _, co := range out {
		if err := co.Validate(); err != nil {
			return nil, malformed(err)
		}
	}
	return out, nil
}

// ListSchedules returns the weekly schedules of a course.
func (c *Client) ListSchedules(ctx context.Context, courseID int64) ([]model.ClassSchedule, error) {
	var out []model.ClassSchedule
	if err := c.do(ctx, http.MethodGet, "/courses/"+id(courseID)+"/schedules", nil, &out); err != nil {
		return nil, err
	}
	for _, s := range out {
		if err := s.Validate(); err != nil {
			return nil, malformed(err)
		}
	}
	return out, nil
}

// ListSessions returns the sessions of a course, optionally for one schedule.
func (c *Client) ListSessions(ctx context.Context, courseID int64, scheduleID *int64) ([]model.Session, error) {
	path := "/courses/" + id(courseID) + "/sessions"
	if scheduleID != nil {
		path += "?" + url.Values{"scheduleId": {id(*scheduleID)}}.Encode()
	}
	var out []model.Session
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	for _, s := range out {
		if err := s.Validate(); err != nil {
			return nil, malformed(err)
		}
	}
	return out, nil
}

// CreateSession creates a new open session.
func (c *Client) CreateSession(ctx context.Context, in model.NewSession) (model.Session, error) {
	var out model.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", in, &out); err != nil {
		return model.Session{}, err
	}
	if err := out.Validate(); err != nil {
		return model.Session{}, malformed(err)
	}
	return out, nil
}

// FinalizeSession locks a session's attendance.
func (c *Client) FinalizeSession(ctx context.Context, s model.Session) (model.Session, error) {
	s.Finalized = true
	var out model.Session
	if err := c.do(ctx, http.MethodPut, "/sessions/"+id(s.ID), s, &out); err != nil {
		return model.Session{}, err
	}
	if err := out.Validate(); err != nil {
		return model.Session{}, malformed(err)
	}
	if !out.Finalized {
		return model.Session{}, malformed(errors.New("session not finalized by server"))
	}
	return out, nil
}

// ListAttendance returns the records already stored for a session.
func (c *Client) ListAttendance(ctx context.Context, sessionID int64) ([]model.Record, error) {
	var out []model.Record
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id(sessionID)+"/attendance", nil, &out); err != nil {
		return nil, err
	}
	for _, r := range out {
		if err := r.Validate(); err != nil {
			return nil, malformed(err)
		}
	}
	return out, nil
}

// UpsertAttendance writes one student's record.
func (c *Client) UpsertAttendance(ctx context.Context, in model.RecordInput) (model.Record, error) {
	var out model.Record
	if err := c.do(ctx, http.MethodPost, "/attendance", in, &out); err != nil {
		return model.Record{}, err
	}
	if err := out.Validate(); err != nil {
		return model.Record{}, malformed(err)
	}
	return out, nil
}

// ListRoster returns the students enrolled in a course.
func (c *Client) ListRoster(ctx context.Context, courseID int64) ([]model.RosterEntry, error) {
	var out []model.RosterEntry
	if err := c.do(ctx, http.MethodGet, "/courses/"+id(courseID)+"/students", nil, &out); err != nil {
		return nil, err
	}
	for _, e := range out {
		if err := e.Validate(); err != nil {
			return nil, malformed(err)
		}
	}
	return out, nil
}

// SessionSummary fetches the report of a finalized session.
func (c *Client) SessionSummary(ctx context.Context, sessionID int64) (report.Summary, error) {
	var out report.Summary
	if err := c.do(ctx, http.MethodGet, "/sessions/"+id(sessionID)+"/summary", nil, &out); err != nil {
		return report.Summary{}, err
	}
	return out, nil
}

// do sends an authenticated request.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	cred, err := credential.Current(ctx, c.Creds)
	if err != nil {
		return err
	}
	return c.send(ctx, cred.Token, method, path, in, out)
}

func (c *Client) send(ctx context.Context, token, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.Log.Warn("backend request failed", zap.String("method", method), zap.String("path", path),
			zap.String("request_id", reqID), zap.Error(err))
		return fmt.Errorf("backend request failed: %w", err)
	}
	defer resp.Body.Close()

	c.Log.Debug("backend request", zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)),
		zap.String("request_id", reqID))

	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		return apierr.ErrUnauthenticated
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &apierr.APIError{StatusCode: resp.StatusCode, Message: serverMessage(raw), RequestID: reqID}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return malformed(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// serverMessage extracts {"error": "..."} or {"message": "..."} from a body.
func serverMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}

func malformed(err error) error {
	return &apierr.APIError{StatusCode: http.StatusBadGateway, Message: "unexpected response from server: " + err.Error()}
}

func id(v int64) string { return strconv.FormatInt(v, 10) }
