package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"cachet/internal/domain"
	"cachet/internal/server"
)

// HTTP talks to the relay's REST surface. Base is the server root, for
// example "http://localhost:8080".
type HTTP struct {
	Base string
	HTTP *http.Client
}

func NewHTTP(base string) *HTTP { return &HTTP{Base: base, HTTP: http.DefaultClient} }

var _ domain.RelayClient = (*HTTP)(nil)
var _ domain.Directory = (*directory)(nil)

func (c *HTTP) Register(ctx context.Context, username, displayName, password string, publicKey []byte, algorithm string, blob domain.KeyBlob) (string, domain.Identity, error) {
	var out server.AuthResponse
	err := c.post(ctx, "/api/auth/register", "", server.RegisterRequest{
		Username:       username,
		DisplayName:    displayName,
		Password:       password,
		PublicKey:      publicKey,
		Algorithm:      algorithm,
		PrivateKeyBlob: blob,
	}, &out)
	if err != nil {
		return "", domain.Identity{}, err
	}
	return out.Token, out.Identity, nil
}

func (c *HTTP) Login(ctx context.Context, username, password string) (string, domain.Account, error) {
	var out server.LoginResponse
	err := c.post(ctx, "/api/auth/login", "", server.LoginRequest{
		Username: username,
		Password: password,
	}, &out)
	if err != nil {
		return "", domain.Account{}, err
	}
	return out.Token, domain.Account{
		ID:          out.Identity.ID,
		Username:    out.Username,
		DisplayName: out.Identity.DisplayName,
		PublicKey:   out.PublicKey,
		Algorithm:   out.Algorithm,
		KeyBlob:     out.PrivateKeyBlob,
	}, nil
}

func (c *HTTP) PublicKey(ctx context.Context, token string, id domain.UserID) (domain.PublicKeyRecord, error) {
	var out domain.PublicKeyRecord
	err := c.getJSON(ctx, "/api/identity/"+url.PathEscape(string(id))+"/publicKey", token, &out)
	return out, err
}

func (c *HTTP) PrivateKeyBlob(ctx context.Context, token string) (domain.KeyBlob, string, error) {
	var out server.BlobResponse
	if err := c.getJSON(ctx, "/api/me/privateKeyBlob", token, &out); err != nil {
		return domain.KeyBlob{}, "", err
	}
	return domain.KeyBlob{Ciphertext: out.Ciphertext, IV: out.IV, Salt: out.Salt}, out.Username, nil
}

func (c *HTTP) Search(ctx context.Context, token, query string) ([]domain.Identity, error) {
	var rows []server.UserSummary
	if err := c.getJSON(ctx, "/api/users/search?q="+url.QueryEscape(query), token, &rows); err != nil {
		return nil, err
	}
	ids := make([]domain.Identity, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, domain.Identity{ID: r.ID, DisplayName: r.Username})
	}
	return ids, nil
}

func (c *HTTP) History(ctx context.Context, token string, with domain.UserID, limit int) ([]domain.Envelope, error) {
	u := "/api/messages?with=" + url.QueryEscape(string(with))
	if limit > 0 {
		u += "&limit=" + strconv.Itoa(limit)
	}
	var envs []domain.Envelope
	return envs, c.getJSON(ctx, u, token, &envs)
}

// Directory returns a domain.Directory view bound to the given token.
func (c *HTTP) Directory(token string) domain.Directory {
	return &directory{client: c, token: token}
}

type directory struct {
	client *HTTP
	token  string
}

func (d *directory) PublicKey(ctx context.Context, id domain.UserID) (domain.PublicKeyRecord, error) {
	return d.client.PublicKey(ctx, d.token, id)
}

func (c *HTTP) post(ctx context.Context, path, token string, in, out any) error {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(in); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTP) getJSON(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Base+path, nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(path, resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError maps well-known statuses onto domain sentinels so callers can
// branch without parsing strings.
func statusError(path string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("relay %s: %w", path, domain.ErrAuthentication)
	case http.StatusNotFound:
		return fmt.Errorf("relay %s: %w", path, domain.ErrUnknownUser)
	case http.StatusConflict:
		return fmt.Errorf("relay %s: %w", path, domain.ErrDuplicateUsername)
	default:
		return fmt.Errorf("relay %s: %s", path, resp.Status)
	}
}
