package similarity

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/pkg/errors"

	"github.com/ssciwr/similarity-client-go/pkg/alerts"
	chhttp "github.com/ssciwr/similarity-client-go/pkg/commons/http"
	"github.com/ssciwr/similarity-client-go/pkg/logger"
)

type Client interface {
	// ListCollections returns the ids of all collections.
	ListCollections(ctx context.Context) (*CollectionList, error)
	// CollectionOptions returns one selectable entry per collection, named "Collection <id>".
	CollectionOptions(ctx context.Context) ([]CollectionOption, error)
	// GetCollection returns the metadata of a single collection.
	GetCollection(ctx context.Context, id string) (*CollectionInfo, error)
	// CreateDataset creates a collection. heidiconTag is optional.
	CreateDataset(ctx context.Context, name string, heidiconTag string, key string) (*CreatedCollection, error)
	ChangeDatasetName(ctx context.Context, id string, name string, key string) error
	DeleteDataset(ctx context.Context, id string, key string) error
	// UploadCSVFile replaces the collection content with the given CSV document.
	UploadCSVFile(ctx context.Context, id string, file io.Reader, key string) error
	// UpdateHeidicon asks the backend to refresh the content from the collection's HeidICON tag.
	UpdateHeidicon(ctx context.Context, id string, key string) error
	// SimilaritySearch searches the collection for images similar to the given raw image.
	SimilaritySearch(ctx context.Context, id string, image []byte, key string, opts ...SearchOption) ([]SearchResult, error)
	// FinetuneModel starts fine-tuning the model for the collection.
	FinetuneModel(ctx context.Context, id string, key string) error
	// VerifyAPIKey checks whether the backend accepts key.
	VerifyAPIKey(ctx context.Context, key string) (*Verification, error)
	// Alerts returns the store that receives backend messages.
	Alerts() *alerts.Store
	// Close releases idle connections and flushes the logger.
	Close() error
}

// BaseAPIClient is the request layer. It performs single round trips and never fails
// with a panic or a nil result; see Get, Post and PostFile.
type BaseAPIClient struct {
	httpClient     *http.Client
	baseURL        string
	defaultHeaders map[string]string
	httpTransport  *http.Transport
	timeout        time.Duration
	timeoutSet     bool
	retryStrategy  chhttp.RetryStrategy
	alerts         *alerts.Store
	logger         logger.Logger
	settings       *Settings
	entropyMu      sync.Mutex
	entropy        io.Reader
}

type ClientOption func(client *BaseAPIClient) error

func WithBaseURL(baseURL string) ClientOption {
	return func(c *BaseAPIClient) error {
		if strings.TrimSpace(baseURL) == "" {
			return errors.New("baseURL cannot be empty")
		}
		c.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithSettings applies previously loaded settings.
func WithSettings(s *Settings) ClientOption {
	return func(c *BaseAPIClient) error {
		if s == nil {
			return errors.New("settings cannot be nil")
		}
		if err := s.Validate(); err != nil {
			return err
		}
		c.settings = s
		c.baseURL = strings.TrimRight(s.BaseURL, "/")
		c.timeout = s.Timeout
		c.timeoutSet = !s.defaultTimeout
		if s.Debug {
			devLogger, err := logger.NewDevelopmentZapLogger()
			if err != nil {
				return errors.Wrap(err, "error creating debug logger")
			}
			c.logger = devLogger
		}
		return nil
	}
}

// WithBaseURLFromEnv loads Settings from the environment (and .env) and applies them.
func WithBaseURLFromEnv() ClientOption {
	return func(c *BaseAPIClient) error {
		s, err := LoadSettings()
		if err != nil {
			return err
		}
		return WithSettings(s)(c)
	}
}

// WithHTTPClient uses httpClient for all requests. The client is never modified: its
// Timeout is kept unless WithTimeout or SIMILARITY_TIMEOUT is given, in which case a
// copy carries the new timeout.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *BaseAPIClient) error {
		if httpClient == nil {
			return errors.New("httpClient cannot be nil")
		}
		c.httpClient = httpClient
		return nil
	}
}

func WithDefaultHeaders(headers map[string]string) ClientOption {
	return func(c *BaseAPIClient) error {
		if headers == nil {
			return errors.New("headers cannot be nil")
		}
		for k, v := range headers {
			c.defaultHeaders[k] = v
		}
		return nil
	}
}

// WithTimeout sets the request timeout. Zero disables it.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *BaseAPIClient) error {
		if timeout < 0 {
			return errors.New("timeout cannot be negative")
		}
		c.timeout = timeout
		c.timeoutSet = true
		return nil
	}
}

// WithLogger sets a custom logger for the client. If not set, a NoopLogger is used by default.
func WithLogger(l logger.Logger) ClientOption {
	return func(c *BaseAPIClient) error {
		if l == nil {
			return errors.New("logger cannot be nil")
		}
		c.logger = l
		return nil
	}
}

// WithAlerts routes backend messages into the given store. Without it the client owns
// a private store, reachable through Alerts().
func WithAlerts(store *alerts.Store) ClientOption {
	return func(c *BaseAPIClient) error {
		if store == nil {
			return errors.New("alerts store cannot be nil")
		}
		c.alerts = store
		return nil
	}
}

// WithRetryStrategy enables retries. Requests are sent exactly once by default.
func WithRetryStrategy(strategy chhttp.RetryStrategy) ClientOption {
	return func(c *BaseAPIClient) error {
		if strategy == nil {
			return errors.New("retry strategy cannot be nil")
		}
		c.retryStrategy = strategy
		return nil
	}
}

// WithSSLCert adds a PEM certificate to the trusted roots. It may be given several times.
// Has no effect together with WithHTTPClient.
func WithSSLCert(certPath string) ClientOption {
	return func(c *BaseAPIClient) error {
		if _, err := os.Stat(certPath); certPath == "" || err != nil {
			return errors.Errorf("invalid cert path %v", err)
		}
		cert, err := os.ReadFile(certPath)
		if err != nil {
			return err
		}
		tlsConfig := c.tlsConfig()
		if tlsConfig.RootCAs == nil {
			tlsConfig.RootCAs = x509.NewCertPool()
		}
		if ok := tlsConfig.RootCAs.AppendCertsFromPEM(cert); !ok {
			return errors.New("failed to append cert to pool")
		}
		return nil
	}
}

// WithInsecure skips TLS verification. DO NOT USE IN PRODUCTION.
func WithInsecure() ClientOption {
	return func(c *BaseAPIClient) error {
		c.tlsConfig().InsecureSkipVerify = true
		return nil
	}
}

func (bc *BaseAPIClient) tlsConfig() *tls.Config {
	if bc.httpTransport.TLSClientConfig == nil {
		bc.httpTransport.TLSClientConfig = &tls.Config{}
	}
	return bc.httpTransport.TLSClientConfig
}

func newBaseAPIClient(options ...ClientOption) (*BaseAPIClient, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	client := &BaseAPIClient{
		baseURL:       DefaultBaseURL,
		httpTransport: transport,
		defaultHeaders: map[string]string{
			"User-Agent": userAgent,
		},
		retryStrategy: chhttp.NoRetry{},
		logger:        logger.NewNoopLogger(),
		entropy:       ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt(client); err != nil {
			return nil, err
		}
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Transport: client.httpTransport, Timeout: client.timeout}
	} else if client.timeoutSet {
		// work on a copy; the caller's client may be shared
		hc := *client.httpClient
		hc.Timeout = client.timeout
		client.httpClient = &hc
	} else {
		client.timeout = client.httpClient.Timeout
	}
	if client.alerts == nil {
		client.alerts = alerts.NewStore()
	}
	if client.logger == nil {
		client.logger = logger.NewNoopLogger()
	}
	return client, nil
}

func (bc *BaseAPIClient) BaseURL() string {
	return bc.baseURL
}

func (bc *BaseAPIClient) HTTPClient() *http.Client {
	return bc.httpClient
}

func (bc *BaseAPIClient) DefaultHeaders() map[string]string {
	return bc.defaultHeaders
}

func (bc *BaseAPIClient) Timeout() time.Duration {
	return bc.timeout
}

func (bc *BaseAPIClient) Alerts() *alerts.Store {
	return bc.alerts
}

func (bc *BaseAPIClient) newRequestID() string {
	bc.entropyMu.Lock()
	defer bc.entropyMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), bc.entropy)
	if err != nil {
		return ""
	}
	return id.String()
}
