package credential

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"
	SearchScope            = "https://search.azure.com/.default"
)

// Credential produces the header used to authorize a request to an Azure service.
type Credential interface {
	Header(ctx context.Context) (name, value string, err error)
}

// Key authorizes with an api-key header.
type Key string

func (k Key) Header(ctx context.Context) (name, value string, err error) {
	return "api-key", string(k), nil
}

func NewToken(cred azcore.TokenCredential, scope string) Token {
	return Token{
		cred:  cred,
		scope: scope,
	}
}

// Token authorizes with a bearer token from an Azure identity.
type Token struct {
	cred  azcore.TokenCredential
	scope string
}

func (t Token) Header(ctx context.Context) (name, value string, err error) {
	tok, err := t.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{t.scope}})
	if err != nil {
		return "", "", fmt.Errorf("credential: failed to get token for scope %q: %w", t.scope, err)
	}
	return "Authorization", "Bearer " + tok.Token, nil
}

// Authorize sets the credential's header on h.
func Authorize(ctx context.Context, c Credential, h http.Header) error {
	name, value, err := c.Header(ctx)
	if err != nil {
		return err
	}
	h.Set(name, value)
	return nil
}

type Options struct {
	OpenAIKey string
	SearchKey string
	TenantID  string
}

type Kind string

const (
	KindKeys            Kind = "keys"
	KindDeveloperCLI    Kind = "azure-developer-cli"
	KindDefaultAzureCLI Kind = "default-azure"
)

type Selection struct {
	Kind   Kind
	OpenAI Credential
	Search Credential
}

var newDeveloperCLICredential = func(tenantID string) (azcore.TokenCredential, error) {
	return azidentity.NewAzureDeveloperCLICredential(&azidentity.AzureDeveloperCLICredentialOptions{
		TenantID: tenantID,
	})
}

var newDefaultAzureCredential = func() (azcore.TokenCredential, error) {
	return azidentity.NewDefaultAzureCredential(nil)
}

// Select picks the OpenAI and Search credentials. API keys win when present. A token
// credential is only constructed when at least one key is missing.
func Select(log *slog.Logger, opts Options) (s Selection, err error) {
	s.Kind = KindKeys
	var tc azcore.TokenCredential
	if opts.OpenAIKey == "" || opts.SearchKey == "" {
		if opts.TenantID != "" {
			log.Info("using AzureDeveloperCliCredential", slog.String("tenant_id", opts.TenantID))
			s.Kind = KindDeveloperCLI
			tc, err = newDeveloperCLICredential(opts.TenantID)
		} else {
			log.Info("using DefaultAzureCredential")
			s.Kind = KindDefaultAzureCLI
			tc, err = newDefaultAzureCredential()
		}
		if err != nil {
			return s, fmt.Errorf("credential: failed to create %s credential: %w", s.Kind, err)
		}
	}
	s.OpenAI = keyOrToken(opts.OpenAIKey, tc, CognitiveServicesScope)
	s.Search = keyOrToken(opts.SearchKey, tc, SearchScope)
	return s, nil
}

func keyOrToken(key string, tc azcore.TokenCredential, scope string) Credential {
	if key != "" {
		return Key(key)
	}
	return NewToken(tc, scope)
}
