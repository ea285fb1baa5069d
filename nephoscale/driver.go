package nephoscale

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	gocontext "context"

	"github.com/cenk/backoff"
	"github.com/mitchellh/multistep"
	"github.com/sirupsen/logrus"

	"github.com/mistio/go-nephoscale/config"
	"github.com/mistio/go-nephoscale/context"
	"github.com/mistio/go-nephoscale/metrics"
)

const (
	defaultPollAttempts = 20
	defaultPollInterval = 10 * time.Second
)

// ErrMissingCredentialsConfig is returned when the provider config has
// no USER or KEY entry.
var ErrMissingCredentialsConfig = fmt.Errorf("expected config keys user and key")

var errServerNotVisible = fmt.Errorf("server not yet visible in listing")

// Driver issues lifecycle commands against the NephoScale API. It holds
// only the immutable credential pair and may be shared across callers,
// though concurrent CreateNode calls with the same server name race in
// the name-match step and must be avoided by the caller.
type Driver struct {
	// PollAttempts and PollInterval bound CreateNode's wait for the new
	// server to become visible in the listing.
	PollAttempts uint64
	PollInterval time.Duration

	client *client
	prices PriceLookup
}

// NewDriver builds a Driver for the given credential pair against the
// production API endpoint.
func NewDriver(user, key string) (*Driver, error) {
	return newDriver(user, key, "")
}

// DriverFromConfig builds a Driver from a provider config map. USER and
// KEY are mandatory; ENDPOINT, POLL_ATTEMPTS and POLL_INTERVAL override
// their defaults.
func DriverFromConfig(cfg *config.ProviderConfig) (*Driver, error) {
	if !cfg.IsSet("USER") || !cfg.IsSet("KEY") {
		return nil, ErrMissingCredentialsConfig
	}

	d, err := newDriver(cfg.Get("USER"), cfg.Get("KEY"), cfg.Get("ENDPOINT"))
	if err != nil {
		return nil, err
	}

	if cfg.IsSet("POLL_ATTEMPTS") {
		attempts, err := strconv.ParseUint(cfg.Get("POLL_ATTEMPTS"), 10, 64)
		if err != nil {
			return nil, err
		}
		d.PollAttempts = attempts
	}

	if cfg.IsSet("POLL_INTERVAL") {
		interval, err := time.ParseDuration(cfg.Get("POLL_INTERVAL"))
		if err != nil {
			return nil, err
		}
		d.PollInterval = interval
	}

	return d, nil
}

func newDriver(user, key, endpoint string) (*Driver, error) {
	client, err := newClient(user, key, endpoint)
	if err != nil {
		return nil, err
	}

	return &Driver{
		PollAttempts: defaultPollAttempts,
		PollInterval: defaultPollInterval,

		client: client,
		prices: StaticPriceLookup{},
	}, nil
}

// SetPriceLookup plugs in the pricing catalog used to enrich the size
// catalog returned by ListSizes.
func (d *Driver) SetPriceLookup(prices PriceLookup) {
	d.prices = prices
}

// ListLocations lists the provider's datacenters.
func (d *Driver) ListLocations(ctx gocontext.Context) ([]*Location, error) {
	env, err := d.client.request(ctx, "GET", "/datacenter/", nil)
	if err != nil {
		return nil, err
	}
	return decodeLocations(env.Data)
}

// ListImages lists the server image catalog.
func (d *Driver) ListImages(ctx gocontext.Context) ([]*Image, error) {
	env, err := d.client.request(ctx, "GET", "/image/server/", nil)
	if err != nil {
		return nil, err
	}
	return decodeImages(env.Data)
}

// ListSizes lists the service type catalog, price-enriched and sorted
// ascending by price.
func (d *Driver) ListSizes(ctx gocontext.Context) ([]*Size, error) {
	env, err := d.client.request(ctx, "GET", "/server/type/cloud/", nil)
	if err != nil {
		return nil, err
	}

	sizes, err := decodeSizes(env.Data)
	if err != nil {
		return nil, err
	}

	for _, size := range sizes {
		size.Price = d.prices.SizePrice(size.ID)
	}
	sortSizesByPrice(sizes)

	return sizes, nil
}

// ListNodes lists the account's cloud servers.
func (d *Driver) ListNodes(ctx gocontext.Context) ([]*Node, error) {
	env, err := d.client.request(ctx, "GET", "/server/cloud/", nil)
	if err != nil {
		return nil, err
	}
	return decodeNodes(env.Data)
}

// RenameNode renames a server, optionally changing its hostname too.
func (d *Driver) RenameNode(ctx gocontext.Context, nodeID, name, hostname string) (bool, error) {
	form := url.Values{"name": {name}}
	if hostname != "" {
		form.Set("hostname", hostname)
	}

	env, err := d.client.request(ctx, "PUT", fmt.Sprintf("/server/cloud/%s/", nodeID), form)
	if err != nil {
		return false, err
	}
	return env.ok(), nil
}

// RebootNode reboots a running server.
func (d *Driver) RebootNode(ctx gocontext.Context, nodeID string) (bool, error) {
	return d.initiator(ctx, nodeID, "restart")
}

// StartNode starts a stopped server.
func (d *Driver) StartNode(ctx gocontext.Context, nodeID string) (bool, error) {
	return d.initiator(ctx, nodeID, "start")
}

// StopNode stops a running server.
func (d *Driver) StopNode(ctx gocontext.Context, nodeID string) (bool, error) {
	return d.initiator(ctx, nodeID, "stop")
}

func (d *Driver) initiator(ctx gocontext.Context, nodeID, action string) (bool, error) {
	env, err := d.client.request(ctx, "POST", fmt.Sprintf("/server/cloud/%s/initiator/%s/", nodeID, action), nil)
	if err != nil {
		return false, err
	}
	return env.ok(), nil
}

// DestroyNode destroys a server.
func (d *Driver) DestroyNode(ctx gocontext.Context, nodeID string) (bool, error) {
	env, err := d.client.request(ctx, "DELETE", fmt.Sprintf("/server/cloud/%s/", nodeID), nil)
	if err != nil {
		return false, err
	}
	return env.ok(), nil
}

// CreateNodeOpts are the attributes of a new server. Name, Size and
// Image are mandatory; Hostname defaults to Name. ServerKeyID and
// ConsoleKeyID optionally install pre-registered credential keys.
type CreateNodeOpts struct {
	Name         string
	Hostname     string
	Size         *Size
	Image        *Image
	ServerKeyID  string
	ConsoleKeyID string
}

type createStepWrapper struct {
	f func(*createContext) multistep.StepAction
	c *createContext
}

func (w *createStepWrapper) Run(multistep.StateBag) multistep.StepAction {
	return w.f(w.c)
}

func (w *createStepWrapper) Cleanup(multistep.StateBag) { return }

type createContext struct {
	ctx       gocontext.Context
	opts      *CreateNodeOpts
	hostname  string
	bootStart time.Time
	nodeChan  chan *Node
	errChan   chan error
}

// CreateNode submits a server create request and resolves the resulting
// server's identity. The create call acknowledges the request but
// carries no id or address, so the driver polls the listing endpoint
// for a server with the requested name, bounded by PollAttempts calls
// PollInterval apart. The create call itself is never retried; the API
// has no idempotency key and a retry could create duplicates.
//
// When the budget is exhausted without a match the returned node
// carries the requested name but an empty ID. That result means the
// create was acknowledged but the server's identity could not be
// confirmed; callers must check for an empty ID, not for an error.
func (d *Driver) CreateNode(ctx gocontext.Context, opts *CreateNodeOpts) (*Node, error) {
	logger := context.LoggerFromContext(ctx).WithField("self", "nephoscale/driver")

	if opts == nil || opts.Name == "" {
		return nil, &ValidationError{Field: "name"}
	}
	if opts.Size == nil {
		return nil, &ValidationError{Field: "size"}
	}
	if opts.Image == nil {
		return nil, &ValidationError{Field: "image"}
	}

	hostname := opts.Hostname
	if hostname == "" {
		hostname = opts.Name
	}

	c := &createContext{
		ctx:      ctx,
		opts:     opts,
		hostname: hostname,
		nodeChan: make(chan *Node, 1),
		errChan:  make(chan error, 1),
	}

	runner := &multistep.BasicRunner{
		Steps: []multistep.Step{
			&createStepWrapper{c: c, f: d.stepSubmitCreate},
			&createStepWrapper{c: c, f: d.stepAwaitServer},
		},
	}

	logger.WithFields(logrus.Fields{
		"name":         opts.Name,
		"service_type": opts.Size.ID,
		"image":        opts.Image.ID,
	}).Info("creating server")

	go runner.Run(&multistep.BasicStateBag{})

	select {
	case node := <-c.nodeChan:
		return node, nil
	case err := <-c.errChan:
		return nil, err
	case <-ctx.Done():
		if ctx.Err() == gocontext.DeadlineExceeded {
			metrics.Mark("nephoscale.create.timeout")
		}
		return nil, ctx.Err()
	}
}

func (d *Driver) stepSubmitCreate(c *createContext) multistep.StepAction {
	form := url.Values{
		"name":         {c.opts.Name},
		"hostname":     {c.hostname},
		"service_type": {c.opts.Size.ID},
		"image":        {c.opts.Image.ID},
		"server_key":   {c.opts.ServerKeyID},
		"console_key":  {c.opts.ConsoleKeyID},
	}

	c.bootStart = time.Now().UTC()

	_, err := d.client.request(c.ctx, "POST", "/server/cloud/", form)
	if err != nil {
		metrics.Mark("nephoscale.create.error")
		c.errChan <- err
		return multistep.ActionHalt
	}

	return multistep.ActionContinue
}

func (d *Driver) stepAwaitServer(c *createContext) multistep.StepAction {
	logger := context.LoggerFromContext(c.ctx).WithField("self", "nephoscale/driver")

	var found *Node

	attempts := d.PollAttempts
	if attempts == 0 {
		attempts = defaultPollAttempts
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(d.PollInterval), c.ctx)

	// Per-attempt listing failures don't abort the wait; the budget is
	// the only bound. The attempt count lives in the operation because
	// the backoff package reads a max of zero as unlimited.
	polls := uint64(0)
	_ = backoff.Retry(func() error {
		polls++
		metrics.Mark("nephoscale.create.poll")

		nodes, err := d.ListNodes(c.ctx)
		if err != nil {
			logger.WithField("err", err).Debug("server listing failed, continuing to poll")
		} else {
			for _, node := range nodes {
				if node.Name == c.opts.Name {
					found = node
					return nil
				}
			}
		}

		if polls >= attempts {
			return nil
		}

		return errServerNotVisible
	}, b)

	if found != nil {
		logger.WithFields(logrus.Fields{
			"id":    found.ID,
			"state": found.State,
		}).Debug("server is visible")

		metrics.TimeSince("nephoscale.create.boot", c.bootStart)
		c.nodeChan <- found
		return multistep.ActionContinue
	}

	if err := c.ctx.Err(); err != nil {
		c.errChan <- err
		return multistep.ActionHalt
	}

	logger.WithField("name", c.opts.Name).Warn("server never became visible, returning placeholder")

	metrics.Mark("nephoscale.create.poll.exhausted")
	c.nodeChan <- placeholderNode(c.opts.Name)
	return multistep.ActionContinue
}

// placeholderNode is the degraded result returned when the create call
// was acknowledged but the server never showed up in the listing within
// the poll budget.
func placeholderNode(name string) *Node {
	return &Node{
		Name:       name,
		PublicIPs:  []string{},
		PrivateIPs: []string{},
	}
}
