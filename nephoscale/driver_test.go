package nephoscale

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	gocontext "context"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mistio/go-nephoscale/config"
)

type nsTestResponse struct {
	status int
	body   string
}

type nsTestRequest struct {
	method string
	path   string
	auth   string
	form   url.Values
}

// nsTestServer serves canned response sequences keyed by method and
// path. The last response in a sequence is sticky. Every request is
// recorded for call-count assertions.
type nsTestServer struct {
	mu        sync.Mutex
	requests  []nsTestRequest
	responses map[string][]nsTestResponse
}

func newNSTestServer() *nsTestServer {
	return &nsTestServer{responses: map[string][]nsTestResponse{}}
}

func (s *nsTestServer) respond(method, path string, responses ...nsTestResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[method+" "+path] = responses
}

func (s *nsTestServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	_ = req.ParseForm()

	s.mu.Lock()
	s.requests = append(s.requests, nsTestRequest{
		method: req.Method,
		path:   req.URL.Path,
		auth:   req.Header.Get("Authorization"),
		form:   req.PostForm,
	})

	key := req.Method + " " + req.URL.Path
	queue := s.responses[key]
	if len(queue) == 0 {
		s.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "OOPS NOPE! %v", key)
		return
	}

	resp := queue[0]
	if len(queue) > 1 {
		s.responses[key] = queue[1:]
	}
	s.mu.Unlock()

	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (s *nsTestServer) count(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, req := range s.requests {
		if req.method == method && req.path == path {
			n++
		}
	}
	return n
}

func (s *nsTestServer) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *nsTestServer) lastForm(method, path string) url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].method == method && s.requests[i].path == path {
			return s.requests[i].form
		}
	}
	return nil
}

func nsTestSetup(t *testing.T, s *nsTestServer) *Driver {
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)

	driver, err := DriverFromConfig(config.ProviderConfigFromMap(map[string]string{
		"USER":          "nepho_user",
		"KEY":           "nepho_key",
		"ENDPOINT":      server.URL,
		"POLL_INTERVAL": "1ms",
	}))
	require.NoError(t, err)

	return driver
}

func Test_DriverFromConfig_missingCredentials(t *testing.T) {
	_, err := DriverFromConfig(config.ProviderConfigFromMap(map[string]string{"USER": "u"}))
	assert.Equal(t, ErrMissingCredentialsConfig, err)
}

func Test_Driver_ListNodes(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/server/cloud/", nsTestResponse{200, `{
		"response": 200,
		"data": [
			{"id": 1, "name": "web-1", "power_status": "on",
			 "ipaddresses": "198.120.14.6, 10.132.60.1"},
			{"id": 2, "name": "web-2", "power_status": "off"}
		]
	}`})

	driver := nsTestSetup(t, s)

	nodes, err := driver.ListNodes(gocontext.TODO())
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "1", nodes[0].ID)
	assert.Equal(t, NodeStateRunning, nodes[0].State)
	assert.Equal(t, []string{"198.120.14.6"}, nodes[0].PublicIPs)
	assert.Equal(t, []string{"10.132.60.1"}, nodes[0].PrivateIPs)
	assert.Equal(t, NodeStateUnknown, nodes[1].State)
	assert.Equal(t, []string{}, nodes[1].PublicIPs)
}

func Test_Driver_ListNodes_sendsBasicAuth(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": []}`})

	driver := nsTestSetup(t, s)

	_, err := driver.ListNodes(gocontext.TODO())
	require.NoError(t, err)

	require.Equal(t, 1, s.total())
	s.mu.Lock()
	auth := s.requests[0].auth
	s.mu.Unlock()
	// base64("nepho_user:nepho_key")
	assert.Equal(t, "Basic bmVwaG9fdXNlcjpuZXBob19rZXk=", auth)
}

func Test_Driver_ListNodes_authenticationError(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/server/cloud/", nsTestResponse{401, `{}`})

	driver := nsTestSetup(t, s)

	_, err := driver.ListNodes(gocontext.TODO())
	require.Error(t, err)
	_, ok := err.(*AuthenticationError)
	assert.True(t, ok)
}

func Test_Driver_ListLocations(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/datacenter/", nsTestResponse{200, `{
		"response": 200,
		"data": [{"id": 3, "name": "SJC-1"}, {"id": 7, "name": "RIC-1"}]
	}`})

	driver := nsTestSetup(t, s)

	locations, err := driver.ListLocations(gocontext.TODO())
	require.NoError(t, err)
	require.Len(t, locations, 2)
	assert.Equal(t, "US", locations[0].Country)
	assert.Equal(t, "US", locations[1].Country)
}

func Test_Driver_ListSizes_sortedByPrice(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/server/type/cloud/", nsTestResponse{200, `{
		"response": 200,
		"data": [
			{"id": 27, "friendly_name": "CS025", "ram": 256, "storage": 15},
			{"id": 46, "friendly_name": "CS050", "ram": 512, "storage": 25},
			{"id": 5, "friendly_name": "CS100", "ram": 1024, "storage": 50}
		]
	}`})

	driver := nsTestSetup(t, s)
	driver.SetPriceLookup(StaticPriceLookup{
		"27": 0.1,
		"46": 0.05,
		"5":  0.1,
	})

	sizes, err := driver.ListSizes(gocontext.TODO())
	require.NoError(t, err)
	require.Len(t, sizes, 3)

	// ascending by price, ties keep provider order
	assert.Equal(t, []string{"46", "27", "5"}, []string{sizes[0].ID, sizes[1].ID, sizes[2].ID})
	assert.Equal(t, 0.05, sizes[0].Price)
	assert.Equal(t, int64(512), sizes[0].RAM)
	assert.Equal(t, int64(25), sizes[0].Disk)
	assert.Equal(t, int64(0), sizes[0].Bandwidth)
}

func Test_Driver_ListSizes_unknownPrices(t *testing.T) {
	s := newNSTestServer()
	s.respond("GET", "/server/type/cloud/", nsTestResponse{200, `{
		"response": 200,
		"data": [
			{"id": 27, "friendly_name": "CS025"},
			{"id": 46, "friendly_name": "CS050"}
		]
	}`})

	driver := nsTestSetup(t, s)

	sizes, err := driver.ListSizes(gocontext.TODO())
	require.NoError(t, err)
	require.Len(t, sizes, 2)

	// all prices equal, provider order preserved
	assert.Equal(t, "27", sizes[0].ID)
	assert.Equal(t, "46", sizes[1].ID)
}

func Test_Driver_RenameNode(t *testing.T) {
	s := newNSTestServer()
	s.respond("PUT", "/server/cloud/88241/", nsTestResponse{200, `{"response": 200}`})

	driver := nsTestSetup(t, s)

	ok, err := driver.RenameNode(gocontext.TODO(), "88241", "prod-1", "prod-1.example.net")
	require.NoError(t, err)
	assert.True(t, ok)

	form := s.lastForm("PUT", "/server/cloud/88241/")
	assert.Equal(t, "prod-1", form.Get("name"))
	assert.Equal(t, "prod-1.example.net", form.Get("hostname"))
}

func Test_Driver_RenameNode_declined(t *testing.T) {
	s := newNSTestServer()
	s.respond("PUT", "/server/cloud/88241/", nsTestResponse{200, `{"response": 400}`})

	driver := nsTestSetup(t, s)

	ok, err := driver.RenameNode(gocontext.TODO(), "88241", "prod-1", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Driver_lifecycleCommands(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/9/initiator/restart/", nsTestResponse{200, `{"response": 200}`})
	s.respond("POST", "/server/cloud/9/initiator/start/", nsTestResponse{200, `{"response": 200}`})
	s.respond("POST", "/server/cloud/9/initiator/stop/", nsTestResponse{200, `{"response": 200}`})
	s.respond("DELETE", "/server/cloud/9/", nsTestResponse{200, `{"response": 200}`})

	driver := nsTestSetup(t, s)
	ctx := gocontext.TODO()

	for _, op := range []func(gocontext.Context, string) (bool, error){
		driver.RebootNode,
		driver.StartNode,
		driver.StopNode,
		driver.DestroyNode,
	} {
		ok, err := op(ctx, "9")
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func Test_Driver_CreateNode_validation(t *testing.T) {
	s := newNSTestServer()
	driver := nsTestSetup(t, s)
	ctx := gocontext.TODO()

	size := &Size{ID: "27"}
	image := &Image{ID: "49"}

	for field, opts := range map[string]*CreateNodeOpts{
		"name":  {Size: size, Image: image},
		"size":  {Name: "staging-1", Image: image},
		"image": {Name: "staging-1", Size: size},
	} {
		_, err := driver.CreateNode(ctx, opts)
		require.Error(t, err, "field %s", field)

		validationErr, ok := err.(*ValidationError)
		require.True(t, ok, "field %s", field)
		assert.Equal(t, field, validationErr.Field)
	}

	_, err := driver.CreateNode(ctx, nil)
	assert.Error(t, err)

	// no remote calls before validation passes
	assert.Equal(t, 0, s.total())
}

func Test_Driver_CreateNode_resolvesByName(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": {}}`})

	unrelated := `{"response": 200, "data": [{"id": 7, "name": "other", "power_status": "on"}]}`
	s.respond("GET", "/server/cloud/",
		nsTestResponse{200, unrelated},
		nsTestResponse{200, unrelated},
		nsTestResponse{200, unrelated},
		nsTestResponse{200, `{"response": 200, "data": [
			{"id": 7, "name": "other", "power_status": "on"},
			{"id": 999, "name": "staging-1", "ipaddresses": "198.51.100.7, 10.0.0.5", "power_status": "on"}
		]}`})

	driver := nsTestSetup(t, s)

	node, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:  "staging-1",
		Size:  &Size{ID: "27"},
		Image: &Image{ID: "49"},
	})
	require.NoError(t, err)

	assert.Equal(t, "999", node.ID)
	assert.Equal(t, "staging-1", node.Name)
	assert.Equal(t, NodeStateRunning, node.State)
	assert.Equal(t, []string{"198.51.100.7"}, node.PublicIPs)
	assert.Equal(t, []string{"10.0.0.5"}, node.PrivateIPs)

	assert.Equal(t, 1, s.count("POST", "/server/cloud/"))
	assert.Equal(t, 4, s.count("GET", "/server/cloud/"))

	form := s.lastForm("POST", "/server/cloud/")
	assert.Equal(t, "staging-1", form.Get("name"))
	assert.Equal(t, "staging-1", form.Get("hostname"))
	assert.Equal(t, "27", form.Get("service_type"))
	assert.Equal(t, "49", form.Get("image"))
}

func Test_Driver_CreateNode_hostnameOverride(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": {}}`})
	s.respond("GET", "/server/cloud/", nsTestResponse{200,
		`{"response": 200, "data": [{"id": 11, "name": "staging-1", "power_status": "on"}]}`})

	driver := nsTestSetup(t, s)

	node, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:         "staging-1",
		Hostname:     "staging-1.internal",
		Size:         &Size{ID: "27"},
		Image:        &Image{ID: "49"},
		ServerKeyID:  "70867",
		ConsoleKeyID: "70907",
	})
	require.NoError(t, err)
	assert.Equal(t, "11", node.ID)

	form := s.lastForm("POST", "/server/cloud/")
	assert.Equal(t, "staging-1.internal", form.Get("hostname"))
	assert.Equal(t, "70867", form.Get("server_key"))
	assert.Equal(t, "70907", form.Get("console_key"))
}

func Test_Driver_CreateNode_exhaustsPollBudget(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": {}}`})
	s.respond("GET", "/server/cloud/", nsTestResponse{200,
		`{"response": 200, "data": [{"id": 7, "name": "other", "power_status": "on"}]}`})

	driver := nsTestSetup(t, s)

	node, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:  "never-shows-up",
		Size:  &Size{ID: "27"},
		Image: &Image{ID: "49"},
	})

	// exhaustion is inconclusive, not a failure
	require.NoError(t, err)
	assert.Equal(t, "", node.ID)
	assert.Equal(t, "never-shows-up", node.Name)
	assert.Equal(t, []string{}, node.PublicIPs)
	assert.Equal(t, []string{}, node.PrivateIPs)

	assert.Equal(t, 20, s.count("GET", "/server/cloud/"))
	assert.Equal(t, 1, s.count("POST", "/server/cloud/"))
}

func Test_Driver_CreateNode_singleAttemptBudget(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": {}}`})
	s.respond("GET", "/server/cloud/", nsTestResponse{200,
		`{"response": 200, "data": [{"id": 7, "name": "other", "power_status": "on"}]}`})

	driver := nsTestSetup(t, s)
	driver.PollAttempts = 1

	node, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:  "never-shows-up",
		Size:  &Size{ID: "27"},
		Image: &Image{ID: "49"},
	})

	require.NoError(t, err)
	assert.Equal(t, "", node.ID)
	assert.Equal(t, "never-shows-up", node.Name)

	assert.Equal(t, 1, s.count("GET", "/server/cloud/"))
}

func Test_Driver_CreateNode_failedCreateIsNotRetried(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{401, `{}`})

	driver := nsTestSetup(t, s)

	_, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:  "staging-1",
		Size:  &Size{ID: "27"},
		Image: &Image{ID: "49"},
	})
	require.Error(t, err)

	_, ok := err.(*AuthenticationError)
	assert.True(t, ok)

	assert.Equal(t, 1, s.count("POST", "/server/cloud/"))
	assert.Equal(t, 0, s.count("GET", "/server/cloud/"))
}

func Test_Driver_CreateNode_pollsThroughListingErrors(t *testing.T) {
	s := newNSTestServer()
	s.respond("POST", "/server/cloud/", nsTestResponse{200, `{"response": 200, "data": {}}`})
	s.respond("GET", "/server/cloud/",
		nsTestResponse{500, `flaky`},
		nsTestResponse{500, `flaky`},
		nsTestResponse{200, `{"response": 200, "data": [{"id": 31, "name": "staging-1", "power_status": "on"}]}`})

	driver := nsTestSetup(t, s)

	node, err := driver.CreateNode(gocontext.TODO(), &CreateNodeOpts{
		Name:  "staging-1",
		Size:  &Size{ID: "27"},
		Image: &Image{ID: "49"},
	})
	require.NoError(t, err)
	assert.Equal(t, "31", node.ID)
	assert.Equal(t, 3, s.count("GET", "/server/cloud/"))
}
