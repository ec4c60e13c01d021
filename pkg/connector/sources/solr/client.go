package solr

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kennyhitachi/hci-connectors/pkg/clients"
	"github.com/kennyhitachi/hci-connectors/pkg/errors"
	stringpool "github.com/kennyhitachi/hci-connectors/pkg/strings"
)

// selectResponse is the part of a /select reply the source reads.
type selectResponse struct {
	Response struct {
		NumFound int64                    `json:"numFound"`
		Start    int64                    `json:"start"`
		Docs     []map[string]interface{} `json:"docs"`
	} `json:"response"`
	Error *struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error"`
}

// client issues select requests against one collection.
type client struct {
	http       *http.Client
	baseURL    string
	collection string
	username   string
	password   string
	// limiter throttles requests; nil means unlimited
	limiter *clients.TokenBucketRateLimiter
}

func (c *client) selectURL() *stringpool.URLBuilder {
	return stringpool.NewURLBuilder(c.baseURL).
		AddPath(c.collection, "select")
}

// query runs a select and decodes the reply. A 404 is NotFound; any other
// non-2xx status is OperationFailed.
func (c *client) query(ctx context.Context, url string) (*selectResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid solr request url")
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New(errors.ErrorTypeNotFound, "solr collection or handler not found").
			WithDetail("collection", c.collection)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf(errors.ErrorTypeOperationFailed, "solr returned HTTP %d", resp.StatusCode).
			WithDetail("status", resp.StatusCode).
			WithDetail("body", strings.TrimSpace(string(body)))
	}

	var out selectResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode solr response")
	}
	if out.Error != nil {
		return nil, errors.Newf(errors.ErrorTypeOperationFailed, "solr error: %s", out.Error.Msg).
			WithDetail("code", out.Error.Code)
	}
	return &out, nil
}

// phraseQuery returns field:"value" with quotes and backslashes escaped.
func phraseQuery(field, value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return field + `:"` + r.Replace(value) + `"`
}
