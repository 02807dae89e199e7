package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE and RPC
// ============================================================

func (c *Client) doPost(ctx context.Context, table string, data map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	body, _, err := c.send(ctx, http.MethodPost, table, bytes.NewReader(jsonBody), "return=representation")
	return body, err
}

// doPatch updates the rows matched by path and returns their new representation.
func (c *Client) doPatch(ctx context.Context, path string, data map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	body, _, err := c.send(ctx, http.MethodPatch, path, bytes.NewReader(jsonBody), "return=representation")
	return body, err
}

func (c *Client) doDelete(ctx context.Context, path string) error {
	_, _, err := c.send(ctx, http.MethodDelete, path, nil, "return=minimal")
	return err
}

// doRPC calls a Postgres function exposed under /rest/v1/rpc.
func (c *Client) doRPC(ctx context.Context, fn string, args map[string]any) ([]byte, error) {
	jsonBody, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	body, _, err := c.send(ctx, http.MethodPost, "rpc/"+fn, bytes.NewReader(jsonBody), "")
	return body, err
}

// decodeFirst unmarshals a PostgREST array response and returns its first row.
func decodeFirst[T any](body []byte) (*T, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// decodeAll unmarshals a PostgREST array response, yielding an empty slice for no rows.
func decodeAll[T any](body []byte) ([]T, error) {
	rows := []T{}
	if len(body) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// selectRows reads every row of table matching q, with retries.
func selectRows[T any](ctx context.Context, c *Client, table string, q url.Values) ([]T, error) {
	var rows []T
	err := c.read(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, table+"?"+q.Encode())
		if err != nil {
			return err
		}
		rows, err = decodeAll[T](body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return nil, wrap(table, err)
	}
	return rows, nil
}
