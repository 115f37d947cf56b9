package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Remote is a Store backed by a shared vary server over HTTP, allowing
// sticky assignments to be consistent across multiple stateless engine
// instances. Callers bound each operation with a context deadline; the
// embedded client timeout is a backstop.
type Remote struct {
	base string
	hc   *http.Client
}

// NewRemote creates a Store talking to the server at baseURL. A nil client
// gets a short default timeout.
func NewRemote(baseURL string, hc *http.Client) *Remote {
	if hc == nil {
		hc = &http.Client{Timeout: 2 * time.Second}
	}
	return &Remote{base: strings.TrimRight(baseURL, "/"), hc: hc}
}

func (r *Remote) assignmentURL(experimentID, subjectID string) string {
	return r.base + "/v1/assignments/" + url.PathEscape(experimentID) + "/" + url.PathEscape(subjectID)
}

// Get implements Store. A 404 means absent/expired, not an error.
func (r *Remote) Get(ctx context.Context, experimentID, subjectID string) (Assignment, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.assignmentURL(experimentID, subjectID), nil)
	if err != nil {
		return Assignment{}, false, err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return Assignment{}, false, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return Assignment{}, false, nil
	default:
		return Assignment{}, false, fmt.Errorf("store: remote get: %s", resp.Status)
	}
	var a Assignment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		return Assignment{}, false, err
	}
	if a.ExperimentID == "" {
		a.ExperimentID = experimentID
	}
	if a.SubjectID == "" {
		a.SubjectID = subjectID
	}
	// Expiry is enforced locally too, so the contract holds even against a
	// server that serves stale records.
	if a.Expired(time.Now()) {
		return Assignment{}, false, nil
	}
	return a, true, nil
}

// Set implements Store.
func (r *Remote) Set(ctx context.Context, a Assignment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.base+"/v1/assignments", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("store: remote set: %s", resp.Status)
	}
	return nil
}

// Clear implements Store.
func (r *Remote) Clear(ctx context.Context, experimentID, subjectID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, r.assignmentURL(experimentID, subjectID), nil)
	if err != nil {
		return err
	}
	resp, err := r.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("store: remote clear: %s", resp.Status)
	}
	return nil
}
