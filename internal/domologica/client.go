package domologica

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/daemonp/domologica2mqtt/internal/log"
	"github.com/daemonp/domologica2mqtt/internal/types"
)

const (
	DefaultTimeout             = 10 * time.Second
	DefaultMetadataConcurrency = 8

	maxBodySize = 8 << 20
)

type ClientConfig struct {
	BaseURL             string
	Username            string
	Password            string
	Timeout             time.Duration
	MetadataConcurrency int
	HTTPClient          *http.Client
}

// Client talks to one gateway. It never retries, that is left to the
// caller's polling schedule.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	metaSem  *semaphore.Weighted
	log      *log.Logger
}

func NewClient(cfg ClientConfig, logger *log.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MetadataConcurrency <= 0 {
		cfg.MetadataConcurrency = DefaultMetadataConcurrency
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	hc := *httpClient
	hc.Timeout = cfg.Timeout

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		http:     &hc,
		metaSem:  semaphore.NewWeighted(int64(cfg.MetadataConcurrency)),
		log:      logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchStatuses returns the raw, unparsed status document.
func (c *Client) FetchStatuses(ctx context.Context) ([]byte, error) {
	return c.get(ctx, "fetch statuses", c.baseURL+statusesPath)
}

// FetchElementMetadata returns the raw descriptor of one element. At most
// MetadataConcurrency calls are in flight at once.
func (c *Client) FetchElementMetadata(ctx context.Context, id types.ElementID) ([]byte, error) {
	if err := c.metaSem.Acquire(ctx, 1); err != nil {
		return nil, &ConnectivityError{Op: "fetch metadata", URL: c.metadataURL(id), Err: err}
	}
	defer c.metaSem.Release(1)

	return c.get(ctx, "fetch metadata", c.metadataURL(id))
}

// SendCommand issues one state-changing request. Parameterless actions are
// plain GETs, actions carrying arguments are POSTed form-encoded.
func (c *Client) SendCommand(ctx context.Context, cmd Command) error {
	endpoint := c.baseURL + fmt.Sprintf(commandPath, url.PathEscape(string(cmd.Element)))
	query := url.Values{"action": {string(cmd.Action)}}
	target := endpoint + "?" + query.Encode()

	var req *http.Request
	var err error
	if len(cmd.Args) == 0 {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	} else {
		form := url.Values{}
		for i, arg := range cmd.Args {
			form.Set(fmt.Sprintf("arguments[%d][value]", i), arg.Value)
			form.Set(fmt.Sprintf("arguments[%d][type]", i), arg.Type)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return &CommandError{Element: cmd.Element, Action: cmd.Action, Err: err}
	}

	c.log.Debug("Sending %s to %s", cmd, endpoint)
	if _, err := c.do(req, "send command"); err != nil {
		return &CommandError{Element: cmd.Element, Action: cmd.Action, Err: err}
	}
	return nil
}

func (c *Client) metadataURL(id types.ElementID) string {
	return c.baseURL + fmt.Sprintf(metadataPath, url.PathEscape(string(id)))
}

func (c *Client) get(ctx context.Context, op, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &ConnectivityError{Op: op, URL: target, Err: err}
	}
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	target := req.URL.Redacted()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ConnectivityError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &ConnectivityError{Op: op, URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &ConnectivityError{Op: op, URL: target, Err: err}
	}
	return body, nil
}
