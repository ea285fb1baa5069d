package nephoscale

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	gocontext "context"

	"github.com/pkg/errors"
)

const apiEndpoint = "https://api.nephoscale.com"

// client performs authenticated requests against the API host and hands
// the transport result to the response normalizer. It holds only the
// immutable credential pair and is safe to share.
type client struct {
	user       string
	key        string
	baseURL    *url.URL
	httpClient *http.Client
}

func newClient(user, key, endpoint string) (*client, error) {
	if endpoint == "" {
		endpoint = apiEndpoint
	}

	baseURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing NephoScale endpoint URL")
	}

	return &client{
		user:       user,
		key:        key,
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
	}, nil
}

// request performs a single best-effort round trip. Mutating calls
// carry a URL-encoded form body. The returned envelope has already been
// through the success whitelist.
func (c *client) request(ctx gocontext.Context, method, path string, form url.Values) (*envelope, error) {
	u := c.baseURL.ResolveReference(&url.URL{Path: path})

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating %s %s request", method, path)
	}

	req.SetBasicAuth(c.user, c.key)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "error sending %s %s request", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s %s response", method, path)
	}

	return parseResponse(resp.StatusCode, respBody)
}
