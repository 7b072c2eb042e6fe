package jobs

import (
	"context"
	"errors"

	"github.com/activecm/threatsync/config"
	"github.com/activecm/threatsync/pkg/correlation"
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/metrics"
	"github.com/activecm/threatsync/pkg/peer"
	"github.com/activecm/threatsync/pkg/pull"
	"github.com/activecm/threatsync/pkg/push"
	"github.com/activecm/threatsync/pkg/reconciler"
	"github.com/activecm/threatsync/pkg/store"
	log "github.com/sirupsen/logrus"
)

type (
	//SyncRequest names the peer and technique of a pull or push job
	SyncRequest struct {
		ServerID  int64  `json:"server_id"`
		Technique string `json:"technique"`
	}

	//CorrelateValueResponse is returned by the correlation jobs
	CorrelateValueResponse = correlation.Result

	//TopCorrelationsResponse ranks the correlation values
	TopCorrelationsResponse struct {
		TopCorrelations []correlation.TopCorrelation `json:"top_correlations"`
	}

	//MaintenanceResponse is returned by the correlation maintenance jobs
	MaintenanceResponse struct {
		Success         bool `json:"success"`
		DatabaseChanged bool `json:"database_changed"`
	}

	//SetThresholdResponse reports the outcome of a threshold change
	SetThresholdResponse struct {
		Saved          bool `json:"saved"`
		ValidThreshold bool `json:"valid_threshold"`
		NewThreshold   int  `json:"new_threshold"`
		OldThreshold   int  `json:"old_threshold"`
	}

	//Surface exposes the synchronization and correlation entry points as
	//independent units of work
	Surface struct {
		puller  *pull.Puller
		pusher  *push.Pusher
		engine  *correlation.Engine
		metrics *metrics.Metrics
		log     *log.Logger
	}
)

//New wires the synchronization and correlation engines on top of the
//store and the peer factory
func New(st store.Store, peers peer.Factory, conf *config.Config, logger *log.Logger,
	m *metrics.Metrics) (*Surface, error) {
	rec, err := reconciler.New(st, conf, logger)
	if err != nil {
		return nil, err
	}
	cfg, err := correlation.NewConfig(st, conf)
	if err != nil {
		return nil, err
	}
	return &Surface{
		puller:  pull.New(st, peers, rec, conf, logger, m),
		pusher:  push.New(st, peers, conf, logger, m),
		engine:  correlation.New(st, cfg, correlation.DefaultRegistry(), conf.S.Correlation.Workers, logger, m),
		metrics: m,
		log:     logger,
	}, nil
}

//SyncUser builds the local user sync jobs act as
func SyncUser(conf *config.Config) data.User {
	u := conf.S.Sync.User
	return data.User{
		ID:               u.ID,
		Email:            u.Email,
		OrgID:            u.OrgID,
		SiteAdmin:        u.SiteAdmin,
		PermSync:         true,
		PermGalaxyEditor: u.GalaxyEditor,
	}
}

//ShowProgress toggles the progress bars of the long running jobs
func (s *Surface) ShowProgress(show bool) {
	s.puller.ShowProgress = show
	s.pusher.ShowProgress = show
	s.engine.ShowProgress = show
}

//Plugins lists the registered correlation plugins
func (s *Surface) Plugins() []correlation.PluginInfo {
	return s.engine.Registry().Plugins()
}

//RegisterPlugin adds a correlation plugin
func (s *Surface) RegisterPlugin(plugin correlation.Plugin) error {
	return s.engine.Registry().Register(plugin)
}

//RunPull pulls from the requested peer
func (s *Surface) RunPull(ctx context.Context, user data.User, req SyncRequest) (pull.Result, error) {
	technique, err := pull.ParseTechnique(req.Technique)
	if err != nil {
		return pull.Result{}, err
	}
	return s.puller.Run(ctx, user, req.ServerID, technique)
}

//RunPush pushes to the requested peer
func (s *Surface) RunPush(ctx context.Context, user data.User, req SyncRequest) (push.Result, error) {
	technique, err := push.ParseTechnique(req.Technique)
	if err != nil {
		return push.Result{}, err
	}
	return s.pusher.Run(ctx, user, req.ServerID, technique)
}

//CorrelateValue runs the built in correlation over a value
func (s *Surface) CorrelateValue(value string) (CorrelateValueResponse, error) {
	return s.engine.CorrelateValue(value)
}

//CorrelationPlugin runs a named correlation plugin over a value
func (s *Surface) CorrelationPlugin(plugin, value string) (CorrelateValueResponse, error) {
	return s.engine.CorrelationPlugin(plugin, value)
}

//TopCorrelations ranks the correlation values by number of correlations
func (s *Surface) TopCorrelations() (TopCorrelationsResponse, error) {
	top, err := s.engine.TopCorrelations()
	if err != nil {
		return TopCorrelationsResponse{}, err
	}
	return TopCorrelationsResponse{TopCorrelations: top}, nil
}

//CleanExcludedCorrelations removes the correlations of excluded values
func (s *Surface) CleanExcludedCorrelations() (MaintenanceResponse, error) {
	changed, err := s.engine.CleanExcludedCorrelations()
	return MaintenanceResponse{Success: err == nil, DatabaseChanged: changed}, err
}

//RegenerateOccurrences recomputes every tracked correlation value
func (s *Surface) RegenerateOccurrences() (MaintenanceResponse, error) {
	changed, err := s.engine.RegenerateOccurrences()
	return MaintenanceResponse{Success: err == nil, DatabaseChanged: changed}, err
}

//SetThreshold changes the over correlation threshold. An invalid threshold
//is reported in the response rather than as an error.
func (s *Surface) SetThreshold(threshold int) (SetThresholdResponse, error) {
	old, updated, err := s.engine.Config().SetThreshold(threshold)
	if errors.Is(err, correlation.ErrInvalidThreshold) {
		s.log.WithField("threshold", threshold).Warn("Rejected invalid correlation threshold")
		return SetThresholdResponse{NewThreshold: updated, OldThreshold: old}, nil
	}
	if err != nil {
		return SetThresholdResponse{ValidThreshold: true, NewThreshold: updated, OldThreshold: old}, err
	}
	s.log.WithFields(log.Fields{
		"old_threshold": old,
		"new_threshold": updated,
	}).Info("Changed correlation threshold")
	return SetThresholdResponse{
		Saved:          true,
		ValidThreshold: true,
		NewThreshold:   updated,
		OldThreshold:   old,
	}, nil
}
