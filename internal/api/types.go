package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// MembersRequest carries members for add/remove.
type MembersRequest struct {
	DB      int      `json:"db"`
	Key     string   `json:"key"`
	Members []string `json:"members"`
}

// PopRequest asks for count random members to be removed.
type PopRequest struct {
	DB    int    `json:"db"`
	Key   string `json:"key"`
	Count string `json:"count"` // parsed server-side; malformed input is a client error
}

// MoveRequest moves one member between two sets.
type MoveRequest struct {
	DB     int    `json:"db"`
	Src    string `json:"src"`
	Dest   string `json:"dest"`
	Member string `json:"member"`
}

// KeysRequest carries the key list of union/diff/inter.
type KeysRequest struct {
	DB   int      `json:"db"`
	Keys []string `json:"keys"`
}

// StoreRequest carries the destination and sources of a store variant.
type StoreRequest struct {
	DB   int      `json:"db"`
	Dest string   `json:"dest"`
	Keys []string `json:"keys"`
}

// CountResponse is the numeric reply shape.
type CountResponse struct {
	Count int `json:"count"`
}

// MembersResponse is the member-list reply shape.
type MembersResponse struct {
	Members []string `json:"members"`
}

// ShardInfo mirrors one shard's counters for the info endpoint.
type ShardInfo struct {
	ID      int    `json:"id"`
	Keys    int    `json:"keys"`
	Updates uint64 `json:"updates"`
	Tasks   uint64 `json:"tasks"`
	Backlog int    `json:"backlog"`
}

// InfoResponse describes the whole shard group.
type InfoResponse struct {
	Shards []ShardInfo `json:"shards"`
}

// ErrorResponse is the error reply shape.
type ErrorResponse struct {
	Error string `json:"error"`
}

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON and decodes the response into out, unless
// out is nil. Non-2xx statuses are returned as errors carrying the
// server's error text when it sent one.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("http %s: %d: %s", url, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetJSON fetches url and decodes the JSON response into out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
