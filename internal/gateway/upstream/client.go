// Package upstream is the HTTP+JSON client for the vendor messaging API:
// login, folder listing, folder metadata, and paginated folder messages.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/edimap/ecoledirecte-imap/common/redact"
	"github.com/edimap/ecoledirecte-imap/common/retry"
)

const envelopeSchemaJSON = `{
	"type": "object",
	"required": ["code", "data"],
	"properties": {
		"code": {"type": "integer"},
		"token": {"type": "string"},
		"message": {"type": "string"},
		"data": {}
	}
}`

// Client performs the four upstream operations the session engine needs.
// It is safe for concurrent use by many connection workers: it holds no
// mutable state beyond the underlying *http.Client's own connection pool.
type Client struct {
	baseURL    *url.URL
	apiVersion string
	httpClient *http.Client
	maxRetries int
	schema     *jsonschema.Schema
}

// Folder is a single vendor-defined "classeur" as returned by ListFolders.
type Folder struct {
	Label string
	ID    uint32
}

// New builds a Client against baseURL, validated at startup so a malformed
// UPSTREAM_BASE_URL fails fast rather than on the first request.
func New(baseURL, apiVersion string, timeout time.Duration, maxRetries int) (*Client, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base URL %q: %w", baseURL, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("envelope.json", strings.NewReader(envelopeSchemaJSON)); err != nil {
		return nil, fmt.Errorf("upstream: compiling envelope schema: %w", err)
	}
	schema, err := compiler.Compile("envelope.json")
	if err != nil {
		return nil, fmt.Errorf("upstream: compiling envelope schema: %w", err)
	}

	return &Client{
		baseURL:    parsed,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		schema:     schema,
	}, nil
}

// transientError marks an error as a transport-level failure worth retrying.
// Semantic failures (4xx, well-formed code != 200 envelopes) are never
// wrapped in this type and therefore never retried.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	_, ok := err.(*transientError)
	return ok
}

// call performs one upstream POST and returns the parsed envelope. verbe and
// query are folded into the query string alongside the fixed "v" parameter;
// bodyJSON is the already-serialized JSON object sent as the literal
// "data=<json>" body.
func (c *Client) call(ctx context.Context, verbe, path string, query map[string]string, bodyJSON, token string) (gjson.Result, error) {
	u := *c.baseURL
	u.Path = joinPath(u.Path, path)
	q := u.Query()
	q.Set("verbe", verbe)
	q.Set("v", c.apiVersion)
	for k, v := range query {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	var raw []byte
	retryCfg := retry.Config{
		MaxAttempts:  c.maxRetries,
		InitialDelay: retry.DefaultConfig.InitialDelay,
		MaxDelay:     retry.DefaultConfig.MaxDelay,
		ShouldRetry:  isTransient,
	}

	err := retry.Do(ctx, retryCfg, func() error {
		body := "data=" + bodyJSON
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), strings.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("User-Agent", "ecoledirecte-imap")
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if token != "" {
			req.Header.Set("X-Token", token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &transientError{fmt.Errorf("request failed: %w", err)}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transientError{fmt.Errorf("reading response: %w", err)}
		}

		if resp.StatusCode >= 500 {
			return &transientError{fmt.Errorf("upstream status %d", resp.StatusCode)}
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("upstream status %d", resp.StatusCode)
		}

		var doc any
		if err := json.Unmarshal(respBody, &doc); err != nil {
			return &transientError{fmt.Errorf("response not valid JSON: %w", err)}
		}
		if err := c.schema.Validate(doc); err != nil {
			return &transientError{fmt.Errorf("response envelope shape invalid: %w", err)}
		}

		raw = respBody
		return nil
	})
	if err != nil {
		secrets := []string{token, gjson.Get(bodyJSON, "motdepasse").String()}
		slog.Warn("upstream call failed", "path", path, "err", redact.String(err.Error(), secrets...))
		return gjson.Result{}, fmt.Errorf("upstream unavailable: %w", err)
	}

	return gjson.ParseBytes(raw), nil
}

func joinPath(base, extra string) string {
	return strings.TrimSuffix(base, "/") + extra
}

// LoginResult is the outcome of a login attempt against the vendor API.
type LoginResult struct {
	UserID  uint32
	Token   string
	Success bool
	Failure *string
}

// Login authenticates username/password and resolves the primary account ID
// plus a bearer token. It never retries a rejected login, only a transport
// failure while attempting it.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	body, _ := sjson.Set("{}", "identifiant", username)
	body, _ = sjson.Set(body, "motdepasse", password)

	envelope, err := c.call(ctx, "", "/v3/login.awp", nil, body, "")
	if err != nil {
		return LoginResult{}, err
	}

	if envelope.Get("code").Int() != 200 {
		if msg := envelope.Get("message"); msg.Exists() {
			s := msg.String()
			return LoginResult{Failure: &s}, nil
		}
		return LoginResult{}, nil
	}

	return LoginResult{
		Success: true,
		UserID:  uint32(envelope.Get("data.accounts.0.id").Uint()),
		Token:   envelope.Get("token").String(),
	}, nil
}

// ListFolders returns the vendor's classeur list (folder label, folder ID
// pairs), read from the INBOX folder_info payload's "classeurs" array.
func (c *Client) ListFolders(ctx context.Context, userID uint32, token string) ([]Folder, error) {
	data, err := c.FolderInfo(ctx, userID, token, 0)
	if err != nil {
		return nil, err
	}

	var folders []Folder
	data.Get("classeurs").ForEach(func(_, classeur gjson.Result) bool {
		folders = append(folders, Folder{
			Label: classeur.Get("libelle").String(),
			ID:    uint32(classeur.Get("id").Uint()),
		})
		return true
	})
	return folders, nil
}

// FolderInfo returns the "data" object of a folder_info call: pagination
// counts plus the message lists for the given classeur.
func (c *Client) FolderInfo(ctx context.Context, userID uint32, token string, folderID uint32) (gjson.Result, error) {
	path := fmt.Sprintf("/v3/eleves/%d/messages.awp", userID)
	query := map[string]string{"idClasseur": strconv.FormatUint(uint64(folderID), 10)}
	envelope, err := c.call(ctx, "get", path, query, "{}", token)
	if err != nil {
		return gjson.Result{}, err
	}
	return envelope.Get("data"), nil
}

// FolderMessages returns a single page of a folder's messages of the given
// kind ("received", "sent", "archived", "draft").
func (c *Client) FolderMessages(ctx context.Context, userID uint32, token string, folderID uint32, kind string, page, pageSize uint32) (gjson.Result, error) {
	path := fmt.Sprintf("/v3/eleves/%d/messages.awp", userID)
	query := map[string]string{
		"idClasseur":      strconv.FormatUint(uint64(folderID), 10),
		"typeRecuperation": kind,
		"page":            strconv.FormatUint(uint64(page), 10),
		"itemsPerPage":    strconv.FormatUint(uint64(pageSize), 10),
	}
	envelope, err := c.call(ctx, "get", path, query, "{}", token)
	if err != nil {
		return gjson.Result{}, err
	}
	return envelope.Get("data"), nil
}
