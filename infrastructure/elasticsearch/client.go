// Package elasticsearch creates verified go-elasticsearch clients and
// manages the listing index.
package elasticsearch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/retry"
)

var errPingFailed = errors.New("elasticsearch ping failed")

// classifyPing retries every ping failure until the caller gives up.
func classifyPing(err error) retry.Outcome {
	switch {
	case err == nil:
		return retry.Success
	case errors.Is(err, context.Canceled):
		return retry.TerminalFailure
	default:
		return retry.TransientFailure
	}
}

// NewClient creates a new Elasticsearch client and verifies the connection,
// retrying with exponential backoff while the cluster is unreachable.
func NewClient(ctx context.Context, cfg Config, log logger.Logger) (*es.Client, error) {
	cfg.SetDefaults()
	url := normalizeURL(cfg.URL)

	transport := cfg.Transport
	if transport == nil {
		t, err := createTransport(cfg.TLS)
		if err != nil {
			return nil, err
		}
		transport = t
	}

	clientConfig := es.Config{
		Addresses:  []string{url},
		Transport:  transport,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.APIKey != "" {
		clientConfig.APIKey = cfg.APIKey
	} else if cfg.Username != "" && cfg.Password != "" {
		clientConfig.Username = cfg.Username
		clientConfig.Password = cfg.Password
	}

	esClient, err := es.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))
	retryCfg := cfg.Retry
	if retryCfg.Classify == nil {
		retryCfg.Classify = classifyPing
	}
	if err := retry.Retry(ctx, retryCfg, func() error {
		return pingElasticsearch(ctx, esClient, cfg.PingTimeout, log)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch after retries: %w", err)
	}
	log.Info("Elasticsearch connection established", logger.String("url", url))

	return esClient, nil
}

// normalizeURL normalizes the Elasticsearch URL by adding http:// prefix if missing
func normalizeURL(url string) string {
	if url == "" {
		return "http://localhost:9200"
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

func createTransport(tlsConfig *TLSConfig) (*http.Transport, error) {
	transport := &http.Transport{}
	if tlsConfig == nil || !tlsConfig.Enabled {
		return transport, nil
	}

	tlsClientConfig := &tls.Config{
		InsecureSkipVerify: tlsConfig.InsecureSkipVerify, //nolint:gosec // opt-in for development clusters
	}
	if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsClientConfig.Certificates = []tls.Certificate{cert}
	}
	if tlsConfig.CAFile != "" {
		pem, err := os.ReadFile(tlsConfig.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", tlsConfig.CAFile)
		}
		tlsClientConfig.RootCAs = pool
	}
	transport.TLSClientConfig = tlsClientConfig
	return transport, nil
}

func pingElasticsearch(ctx context.Context, client *es.Client, timeout time.Duration, log logger.Logger) error {
	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Ping(client.Ping.WithContext(pingCtx))
	if err != nil {
		log.Debug("Elasticsearch ping failed", logger.Error(err))
		return fmt.Errorf("%w: %w", errPingFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		log.Debug("Elasticsearch ping returned error",
			logger.String("status", res.Status()),
			logger.String("body", string(body)),
		)
		return fmt.Errorf("%w: status %s", errPingFailed, res.Status())
	}
	return nil
}

// EnsureIndex creates index with mapping unless it already exists.
func EnsureIndex(ctx context.Context, client *es.Client, index, mapping string, log logger.Logger) error {
	res, err := client.Indices.Exists([]string{index}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index %s: status %s", index, res.Status())
	}

	res, err = client.Indices.Create(index,
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
		client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index %s: status %s: %s", index, res.Status(), body)
	}
	log.Info("Created Elasticsearch index", logger.String("index", index))
	return nil
}
