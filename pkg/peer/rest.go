package peer

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/activecm/threatsync/pkg/data"
	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxErrorBody bounds how much of an error response is kept for logging
const maxErrorBody = 512

type (
	//Options controls the transport used to contact peers
	Options struct {
		ConnectTimeout time.Duration
		ReadTimeout    time.Duration
		UserAgent      string
	}

	//RESTClient implements Client over the peer's JSON API
	RESTClient struct {
		server  *data.Server
		baseURL *url.URL
		http    *http.Client
		opts    Options
		log     *log.Logger
	}

	eventEnvelope struct {
		Event *data.Event `json:"Event"`
	}

	clusterEnvelope struct {
		GalaxyCluster *data.GalaxyCluster `json:"GalaxyCluster"`
	}

	organisationEnvelope struct {
		Organisation *data.Organisation `json:"Organisation"`
	}

	minimalEventsRequest struct {
		Minimal   bool              `json:"minimal"`
		Published bool              `json:"published"`
		Rules     *data.FilterRules `json:"rules,omitempty"`
	}
)

//NewFactory returns a Factory creating REST clients with the given options
func NewFactory(opts Options, logger *log.Logger) Factory {
	return func(server *data.Server) (Client, error) {
		return NewRESTClient(server, opts, logger)
	}
}

//NewRESTClient creates a client for the given peer
func NewRESTClient(server *data.Server, opts Options, logger *log.Logger) (*RESTClient, error) {
	baseURL, err := url.Parse(strings.TrimRight(server.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid url for server %d: %w", server.ID, err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("invalid url for server %d: unsupported scheme %q", server.ID, baseURL.Scheme)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: opts.ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   opts.ConnectTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: server.SelfSigned,
		},
	}

	return &RESTClient{
		server:  server,
		baseURL: baseURL,
		http:    &http.Client{Transport: transport},
		opts:    opts,
		log:     logger,
	}, nil
}

// do issues a request and decodes the JSON response into out when out is not nil
func (c *RESTClient) do(ctx context.Context, op, method, path string, body interface{}, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: could not encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL.String()+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	req = req.WithContext(reqCtx)
	req.Header.Set("Authorization", c.server.AuthKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %v", op, ErrServerNotReachable, err)
	}
	defer resp.Body.Close()

	// the header timeout of the transport does not cover the body
	if c.opts.ReadTimeout > 0 {
		stalled := time.AfterFunc(c.opts.ReadTimeout, cancel)
		defer stalled.Stop()
	}
	timedOut := func() bool {
		return ctx.Err() == nil && reqCtx.Err() != nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := ioutil.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if timedOut() {
			return fmt.Errorf("%s: %w: response body timed out after %s", op, ErrServerNotReachable, c.opts.ReadTimeout)
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut() {
			return fmt.Errorf("%s: %w: response body timed out after %s", op, ErrServerNotReachable, c.opts.ReadTimeout)
		}
		c.log.WithFields(log.Fields{
			"server_id": c.server.ID,
			"op":        op,
			"error":     err.Error(),
		}).Debug("Could not decode peer response")
		return fmt.Errorf("%s: %w: %v", op, ErrInvalidAPIResponse, err)
	}
	return nil
}

//ServerSettings fetches the settings summary of the peer
func (c *RESTClient) ServerSettings(ctx context.Context) (data.ServerSettings, error) {
	var settings data.ServerSettings
	err := c.do(ctx, "get server settings", http.MethodGet, "/servers/serverSettings.json", nil, &settings)
	return settings, err
}

//ServerVersion fetches the version and permissions the peer advertises
func (c *RESTClient) ServerVersion(ctx context.Context) (data.ServerVersion, error) {
	var version data.ServerVersion
	err := c.do(ctx, "get server version", http.MethodGet, "/servers/getVersion.json", nil, &version)
	if err == nil && version.Version == "" {
		err = fmt.Errorf("get server version: %w: missing version", ErrInvalidAPIResponse)
	}
	return version, err
}

//Event fetches a full event by its remote id
func (c *RESTClient) Event(ctx context.Context, id int64) (*data.Event, error) {
	var env eventEnvelope
	path := "/events/view/" + strconv.FormatInt(id, 10) + ".json"
	if err := c.do(ctx, "get event", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if env.Event == nil || env.Event.UUID == "" {
		return nil, fmt.Errorf("get event %d: %w: missing event", id, ErrInvalidAPIResponse)
	}
	return env.Event, nil
}

//MinimalEvents fetches the index view of the published events on the peer,
//filtered by rules unless ignoreFilterRules is set
func (c *RESTClient) MinimalEvents(ctx context.Context, rules data.FilterRules, ignoreFilterRules bool) ([]data.MinimalEvent, error) {
	req := minimalEventsRequest{Minimal: true, Published: true}
	if !ignoreFilterRules {
		req.Rules = &rules
	}
	var events []data.MinimalEvent
	err := c.do(ctx, "get minimal events", http.MethodPost, "/events/index", req, &events)
	return events, err
}

//CreateEvent creates the event on the peer
func (c *RESTClient) CreateEvent(ctx context.Context, event *data.Event) (*data.Event, error) {
	var env eventEnvelope
	err := c.do(ctx, "create event", http.MethodPost, "/events/add", eventEnvelope{Event: event}, &env)
	return env.Event, err
}

//UpdateEvent updates the event on the peer by UUID
func (c *RESTClient) UpdateEvent(ctx context.Context, event *data.Event) (*data.Event, error) {
	var env eventEnvelope
	path := "/events/edit/" + url.PathEscape(event.UUID)
	err := c.do(ctx, "update event", http.MethodPost, path, eventEnvelope{Event: event}, &env)
	return env.Event, err
}

//GalaxyCluster fetches a full cluster by UUID
func (c *RESTClient) GalaxyCluster(ctx context.Context, uuid string) (*data.GalaxyCluster, error) {
	var env clusterEnvelope
	path := "/galaxy_clusters/view/" + url.PathEscape(uuid)
	if err := c.do(ctx, "get galaxy cluster", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if env.GalaxyCluster == nil || env.GalaxyCluster.UUID == "" {
		return nil, fmt.Errorf("get galaxy cluster %s: %w: missing cluster", uuid, ErrInvalidAPIResponse)
	}
	return env.GalaxyCluster, nil
}

//CustomClusters searches the custom clusters of the peer
func (c *RESTClient) CustomClusters(ctx context.Context, conditions ClusterConditions) ([]data.GalaxyCluster, error) {
	body := struct {
		ClusterConditions
		Custom bool `json:"custom"`
	}{conditions, true}
	var envs []clusterEnvelope
	err := c.do(ctx, "get custom clusters", http.MethodPost, "/galaxy_clusters/restSearch", body, &envs)
	if err != nil {
		return nil, err
	}
	clusters := make([]data.GalaxyCluster, 0, len(envs))
	for _, env := range envs {
		if env.GalaxyCluster != nil {
			clusters = append(clusters, *env.GalaxyCluster)
		}
	}
	return clusters, nil
}

//CreateCluster creates the cluster on the peer
func (c *RESTClient) CreateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	var env clusterEnvelope
	err := c.do(ctx, "create galaxy cluster", http.MethodPost, "/galaxy_clusters/add", clusterEnvelope{GalaxyCluster: cluster}, &env)
	return env.GalaxyCluster, err
}

//UpdateCluster updates the cluster on the peer by UUID
func (c *RESTClient) UpdateCluster(ctx context.Context, cluster *data.GalaxyCluster) (*data.GalaxyCluster, error) {
	var env clusterEnvelope
	path := "/galaxy_clusters/edit/" + url.PathEscape(cluster.UUID)
	err := c.do(ctx, "update galaxy cluster", http.MethodPost, path, clusterEnvelope{GalaxyCluster: cluster}, &env)
	return env.GalaxyCluster, err
}

//Proposals fetches the proposals created on the peer since the given time
func (c *RESTClient) Proposals(ctx context.Context, since time.Time) ([]data.ShadowAttribute, error) {
	var proposals []data.ShadowAttribute
	path := "/shadow_attributes/index/all:1/timestamp:" + strconv.FormatInt(since.Unix(), 10) + ".json"
	err := c.do(ctx, "get proposals", http.MethodGet, path, nil, &proposals)
	return proposals, err
}

//PushProposals sends the proposals of an event to the peer
func (c *RESTClient) PushProposals(ctx context.Context, eventUUID string, proposals []data.ShadowAttribute) error {
	path := "/events/pushProposals/" + url.PathEscape(eventUUID)
	return c.do(ctx, "push proposals", http.MethodPost, path, proposals, nil)
}

//EventSightings fetches the sightings of an event
func (c *RESTClient) EventSightings(ctx context.Context, eventUUID string) ([]data.Sighting, error) {
	var sightings []data.Sighting
	path := "/sightings/index/" + url.PathEscape(eventUUID)
	err := c.do(ctx, "get event sightings", http.MethodGet, path, nil, &sightings)
	return sightings, err
}

//PushSightings sends sightings to the peer
func (c *RESTClient) PushSightings(ctx context.Context, sightings []data.Sighting) error {
	return c.do(ctx, "push sightings", http.MethodPost, "/sightings/bulkSaveSightings", sightings, nil)
}

//SharingGroups fetches the sharing groups the peer exposes to this instance
func (c *RESTClient) SharingGroups(ctx context.Context) ([]data.SharingGroup, error) {
	var groups []data.SharingGroup
	err := c.do(ctx, "get sharing groups", http.MethodGet, "/sharing_groups.json", nil, &groups)
	return groups, err
}

//Organisation fetches an organisation by UUID
func (c *RESTClient) Organisation(ctx context.Context, uuid string) (*data.Organisation, error) {
	var env organisationEnvelope
	path := "/organisations/view/" + url.PathEscape(uuid)
	if err := c.do(ctx, "get organisation", http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	if env.Organisation == nil {
		return nil, fmt.Errorf("get organisation %s: %w: missing organisation", uuid, ErrInvalidAPIResponse)
	}
	return env.Organisation, nil
}
