// Package solr crawls the documents of a Solr collection with start/rows
// paging. The collection is the single root container.
package solr

import (
	"bytes"
	"context"
	"io"
	"math"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kennyhitachi/hci-connectors/pkg/clients"
	"github.com/kennyhitachi/hci-connectors/pkg/config"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/base"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/batch"
	"github.com/kennyhitachi/hci-connectors/pkg/connector/core"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	"github.com/kennyhitachi/hci-connectors/pkg/observability"
)

// Scheme prefixes the URIs of records produced by this source.
const Scheme = "solr"

// SolrSource implements core.Source for a Solr collection.
type SolrSource struct {
	*base.BaseConnector

	query   string
	fields  []string
	mapping mapping
	batch   int

	// Session
	client *client
	// httpClient, when set before Initialize, replaces the built client
	httpClient *http.Client
}

// NewSolrSource creates a new Solr source connector
func NewSolrSource(_ *config.BaseConfig) (core.Source, error) {
	return &SolrSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
	}, nil
}

// NewSolrSourceWithClient creates a source that sends its requests through hc.
func NewSolrSourceWithClient(hc *http.Client) *SolrSource {
	return &SolrSource{
		BaseConnector: base.NewBaseConnector(Scheme, core.ConnectorTypeSource, "1.0.0"),
		httpClient:    hc,
	}
}

// Initialize parses the configuration and builds the HTTP client.
func (s *SolrSource) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}

	baseURL, err := cfg.RequireString("url")
	if err != nil {
		return err
	}
	collection, err := cfg.RequireString("collection")
	if err != nil {
		return err
	}

	s.query = cfg.String("query", "*:*")
	s.mapping = mapping{
		idField:      cfg.String("id_field", "id"),
		displayField: cfg.String("display_field", ""),
		versionField: cfg.String("version_field", "_version_"),
		contentField: cfg.String("content_field", ""),
	}
	s.fields = cfg.List("fields")
	if len(s.fields) > 0 && !contains(s.fields, s.mapping.idField) {
		s.fields = append(s.fields, s.mapping.idField)
	}
	if s.batch, err = cfg.BatchSize(); err != nil {
		return err
	}

	rps, err := cfg.Int("requests_per_second", 0)
	if err != nil {
		return err
	}
	burst, err := cfg.Int("request_burst", 1)
	if err != nil {
		return err
	}

	hc := s.httpClient
	if hc == nil {
		httpCfg := clients.DefaultHTTPConfig()
		httpCfg.RequestTimeout = cfg.Timeouts.Request
		httpCfg.DialTimeout = cfg.Timeouts.Connection
		httpCfg.InsecureSkipVerify = cfg.Security.TLSSkipVerify
		if cfg.Timeouts.Idle > 0 {
			httpCfg.IdleConnTimeout = cfg.Timeouts.Idle
		}
		if hc, err = clients.NewHTTPClient(httpCfg); err != nil {
			return err
		}
	}
	s.Closer().Push("http_client", func() error {
		hc.CloseIdleConnections()
		return nil
	})

	s.client = &client{
		http:       hc,
		baseURL:    baseURL,
		collection: collection,
		username:   cfg.Secret("username"),
		password:   cfg.Secret("password"),
		limiter:    clients.NewRateLimiter(float64(rps), burst),
	}

	s.GetMetricsCollector().SessionOpened()
	s.Closer().Push("session_gauge", func() error {
		s.GetMetricsCollector().SessionClosed()
		return nil
	})

	s.GetLogger().Info("Solr source initialized",
		zap.String("url", baseURL),
		zap.String("collection", collection),
		zap.Int("batch_size", s.batch),
		zap.Int("requests_per_second", rps))
	return nil
}

func contains(list []string, v string) bool {
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// Root returns the collection container.
func (s *SolrSource) Root(ctx context.Context) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	rec := core.NewRecord("", core.EncodeURI(Scheme, ""), s.client.collection)
	rec.IsContainer = true
	rec.SetMetadata("query", s.query)
	return rec, nil
}

// List pages through the documents matching the configured query.
func (s *SolrSource) List(ctx context.Context, container *core.Record) (core.RecordIterator, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	if container == nil || !container.IsContainer || container.ID != "" {
		return nil, errors.New(errors.ErrorTypeValidation, "solr sources have a single root container")
	}

	cursor := batch.NewCursor[map[string]interface{}](
		batch.PagerFunc[map[string]interface{}](s.fetchPage), s.batch,
		batch.WithConnector(s.Name(), s.GetMetricsCollector()))
	return batch.NewLister(cursor, s.mapping.mapDoc, nil, batch.ListerConfig{
		Policy:    s.ItemPolicy(),
		Logger:    s.GetLogger(),
		Collector: s.GetMetricsCollector(),
	}), nil
}

func (s *SolrSource) listURL(offset, limit int) string {
	rows := limit
	if rows <= 0 {
		rows = math.MaxInt32
	}
	u := s.client.selectURL().
		AddParam("q", s.query).
		AddParamInt("start", offset).
		AddParamInt("rows", rows).
		AddParam("sort", s.mapping.idField+" asc").
		AddParam("wt", "json")
	if len(s.fields) > 0 {
		u.AddParam("fl", strings.Join(s.fields, ","))
	}
	return u.String()
}

func (s *SolrSource) fetchPage(ctx context.Context, offset, limit int) ([]map[string]interface{}, error) {
	url := s.listURL(offset, limit)
	resp, err := s.client.query(ctx, url)
	if err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to fetch documents", zap.String("url", url))
	}
	return resp.Response.Docs, nil
}

// lookup fetches the single document with the record's id.
func (s *SolrSource) lookup(ctx context.Context, id string) (map[string]interface{}, error) {
	url := s.client.selectURL().
		AddParam("q", phraseQuery(s.mapping.idField, id)).
		AddParamInt("rows", 1).
		AddParam("wt", "json").
		String()
	resp, err := s.client.query(ctx, url)
	if err != nil {
		return nil, s.GetErrorHandler().Surface(err, errors.ErrorTypeOperationFailed,
			"failed to fetch document", zap.String("id", id))
	}
	if len(resp.Response.Docs) == 0 {
		return nil, errors.New(errors.ErrorTypeNotFound, "no document matches record id").
			WithDetail("id", id)
	}
	return resp.Response.Docs[0], nil
}

// Get re-resolves a record. The root URI returns the root record.
func (s *SolrSource) Get(ctx context.Context, uri string) (*core.Record, error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}
	id, err := core.DecodeURI(Scheme, uri)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return s.Root(ctx)
	}
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.mapping.mapDoc(doc)
}

// Open returns the content field, or the stored document as JSON.
func (s *SolrSource) Open(ctx context.Context, uri string) (_ io.ReadCloser, err error) {
	if err := s.CheckOpen(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "solr.open", s.Name())
	defer func() { observability.EndSpan(span, err) }()

	id, err := core.DecodeURI(Scheme, uri)
	if err != nil {
		return nil, err
	}
	doc, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	var data []byte
	if s.mapping.contentField != "" {
		data = []byte(fieldText(doc[s.mapping.contentField]))
	} else if data, err = json.Marshal(doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to encode document")
	}

	s.GetMetricsCollector().RecordBytes(int64(len(data)))
	return io.NopCloser(bytes.NewReader(data)), nil
}
