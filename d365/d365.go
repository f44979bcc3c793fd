package d365

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/jsonapi"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const apiPath = "api/data/v9.2"

type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	// URL of the Dynamics 365 organization, e.g. https://contoso.crm.dynamics.com
	URL string
	// AuthorityURL defaults to https://login.microsoftonline.com.
	AuthorityURL string
}

func (c Config) Validate() error {
	var errs []error
	if c.TenantID == "" {
		errs = append(errs, errors.New("tenant ID is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("client ID is required"))
	}
	if c.ClientSecret == "" {
		errs = append(errs, errors.New("client secret is required"))
	}
	if c.URL == "" {
		errs = append(errs, errors.New("URL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("d365: invalid config: %w", err)
	}
	return nil
}

func New(log *slog.Logger, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AuthorityURL == "" {
		cfg.AuthorityURL = "https://login.microsoftonline.com"
	}
	orgURL := strings.TrimSuffix(cfg.URL, "/")
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     fmt.Sprintf("%s/%s/oauth2/v2.0/token", strings.TrimSuffix(cfg.AuthorityURL, "/"), cfg.TenantID),
		Scopes:       []string{orgURL + "/.default"},
	}
	c := &Client{
		log:    log,
		url:    orgURL,
		tokens: cc.TokenSource(context.Background()),
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "d365",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	})
	return c, nil
}

// Client reads and writes Dataverse records for callers.
type Client struct {
	log    *slog.Logger
	url    string
	tokens oauth2.TokenSource
	cb     *gobreaker.CircuitBreaker
}

type Contact struct {
	ID          string `json:"contactid"`
	FullName    string `json:"fullname"`
	Telephone   string `json:"telephone1"`
	MobilePhone string `json:"mobilephone"`
}

type contactsResponse struct {
	Value []Contact `json:"value"`
}

func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (c *Client) LookupContactByPhone(ctx context.Context, phone string) (contact Contact, ok bool, err error) {
	u, err := jsonapi.URL(c.url).
		Path(apiPath, "contacts").
		Query(map[string]string{
			"$select": "contactid,fullname,telephone1,mobilephone",
			"$filter": fmt.Sprintf("telephone1 eq %[1]s or mobilephone eq %[1]s", odataString(phone)),
			"$top":    "1",
		}).
		String()
	if err != nil {
		return contact, false, fmt.Errorf("d365: failed to create URL: %w", err)
	}
	body, err := c.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return contact, false, fmt.Errorf("d365: contact lookup failed: %w", err)
	}
	var resp contactsResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return contact, false, fmt.Errorf("d365: failed to decode contacts: %w", err)
	}
	if len(resp.Value) == 0 {
		return contact, false, nil
	}
	return resp.Value[0], true, nil
}

type PhoneCall struct {
	Subject     string
	PhoneNumber string
	Description string
	// ContactID links the activity to a contact when set.
	ContactID string
	Duration  time.Duration
}

func (c *Client) LogPhoneCall(ctx context.Context, pc PhoneCall) (err error) {
	u, err := jsonapi.URL(c.url).Path(apiPath, "phonecalls").String()
	if err != nil {
		return fmt.Errorf("d365: failed to create URL: %w", err)
	}
	record := map[string]any{
		"subject":               pc.Subject,
		"phonenumber":           pc.PhoneNumber,
		"description":           pc.Description,
		"directioncode":         false,
		"actualdurationminutes": int(pc.Duration.Round(time.Minute).Minutes()),
	}
	if pc.ContactID != "" {
		record["regardingobjectid_contact@odata.bind"] = fmt.Sprintf("/contacts(%s)", pc.ContactID)
	}
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("d365: failed to marshal phone call: %w", err)
	}
	if _, err = c.do(ctx, http.MethodPost, u, body); err != nil {
		return fmt.Errorf("d365: failed to log phone call: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte) (respBody []byte, err error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to get token: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("OData-MaxVersion", "4.0")
		req.Header.Set("OData-Version", "4.0")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		res, err := jsonapi.Raw(req, jsonapi.WithRequestHeader("Authorization", "Bearer "+tok.AccessToken))
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		b, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		if res.StatusCode < 200 || res.StatusCode > 299 {
			return nil, jsonapi.InvalidStatusError{
				Status: res.StatusCode,
				Body:   string(b),
			}
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}
