package reconciler

import (
	"github.com/activecm/threatsync/pkg/data"
	"github.com/activecm/threatsync/pkg/store"
	log "github.com/sirupsen/logrus"
)

//ReconcileCluster writes a galaxy cluster pulled from the server. The
//decision checks the local id first, then the version. Default clusters,
//clusters without a galaxy and unlocked local clusters are rejected.
func (r *Reconciler) ReconcileCluster(user data.User, server *data.Server, cluster *data.GalaxyCluster) (Outcome, error) {
	if cluster.Default {
		return Skipped, ErrDefaultCluster
	}
	if cluster.Galaxy == nil || cluster.Galaxy.UUID == "" {
		return Skipped, ErrMissingGalaxy
	}

	local, err := r.store.ClusterByUUID(cluster.UUID)
	if err != nil && err != store.ErrNotFound {
		return Skipped, err
	}
	if err == store.ErrNotFound {
		local = nil
	}

	if local != nil {
		if local.Default {
			return Skipped, ErrDefaultCluster
		}
		if !local.Locked && !server.Internal {
			return Skipped, ErrClusterNotLocked
		}
		if local.Version >= cluster.Version {
			return Skipped, nil
		}
	}

	cluster.Locked = true
	cluster.Distribution = r.downgrade(server, cluster.Distribution)
	cluster.Distribution, cluster.SharingGroupID = r.captureSharingGroup(
		cluster.Distribution, cluster.SharingGroup, user, server,
	)

	orgcID, err := r.CaptureOrgc(cluster.Orgc)
	if err != nil {
		r.log.WithFields(log.Fields{
			"cluster_uuid": cluster.UUID,
			"server_id":    server.ID,
			"error":        err.Error(),
		}).Warn("Could not capture cluster creator, assigning it to the local organisation")
		orgcID = user.OrgID
	}
	cluster.OrgcID = orgcID
	cluster.OrgID = user.OrgID
	cluster.TagName = data.ClusterTagName(cluster.Type, cluster.UUID)

	if local != nil {
		cluster.ID = local.ID
		cluster.GalaxyID = local.GalaxyID
		for i := range cluster.Elements {
			cluster.Elements[i].GalaxyClusterID = local.ID
		}
		if _, err := r.store.UpdateCluster(cluster); err != nil {
			return Skipped, err
		}
		return Updated, nil
	}

	cluster.ID = 0
	for i := range cluster.Elements {
		cluster.Elements[i].GalaxyClusterID = 0
	}
	galaxyID, err := r.galaxyID(user, cluster.Galaxy)
	if err != nil {
		return Skipped, err
	}
	cluster.GalaxyID = galaxyID
	if _, err := r.store.CreateCluster(cluster); err != nil {
		return Skipped, err
	}
	return Created, nil
}

// galaxyID resolves the parent galaxy of a new cluster, creating it when
// the user may edit galaxies
func (r *Reconciler) galaxyID(user data.User, galaxy *data.Galaxy) (int64, error) {
	id, ok, err := r.store.GalaxyIDExists(galaxy.UUID)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}
	if !user.SiteAdmin || !user.PermGalaxyEditor {
		return 0, ErrGalaxyPermission
	}
	created, err := r.store.CreateGalaxy(&data.Galaxy{
		UUID:        galaxy.UUID,
		Name:        galaxy.Name,
		Type:        galaxy.Type,
		Description: galaxy.Description,
		Version:     galaxy.Version,
		Namespace:   galaxy.Namespace,
		OrgID:       user.OrgID,
		OrgcID:      user.OrgID,
	})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}
